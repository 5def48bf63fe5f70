package mall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/l1jgo/worldstore/internal/config"
	"github.com/l1jgo/worldstore/internal/persist"
	"go.uber.org/zap"
)

var ErrInvalidPurchase = errors.New("invalid purchase")

// Purchase is the payload published by the web shop for each completed
// order.
type Purchase struct {
	OrderID   string `json:"order_id"`
	Character string `json:"character"`
	Coins     int64  `json:"coins"`
}

// DecodePurchase parses and validates one message value.
func DecodePurchase(value []byte) (Purchase, error) {
	var p Purchase
	if err := json.Unmarshal(value, &p); err != nil {
		return Purchase{}, fmt.Errorf("%w: %v", ErrInvalidPurchase, err)
	}
	id, err := uuid.Parse(p.OrderID)
	if err != nil {
		return Purchase{}, fmt.Errorf("%w: order id %q: %v", ErrInvalidPurchase, p.OrderID, err)
	}
	p.OrderID = id.String()
	p.Character = strings.TrimSpace(p.Character)
	if p.Character == "" {
		return Purchase{}, fmt.Errorf("%w: missing character", ErrInvalidPurchase)
	}
	if p.Coins <= 0 {
		return Purchase{}, fmt.Errorf("%w: coins must be positive, got %d", ErrInvalidPurchase, p.Coins)
	}
	return p, nil
}

// OrderEnqueuer appends pending orders. *persist.OrderRepo implements it.
type OrderEnqueuer interface {
	Enqueue(ctx context.Context, o persist.OrderRow) (bool, error)
}

// Consumer moves purchase events from kafka into the pending order table.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler *handler
	log     *zap.Logger
}

func NewConsumer(cfg config.MallConfig, orders OrderEnqueuer, log *zap.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, sc)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &Consumer{
		group:   group,
		topic:   cfg.Topic,
		handler: &handler{orders: orders, log: log},
		log:     log,
	}, nil
}

// Run consumes until ctx is cancelled. Sessions end on every rebalance, so
// Consume is called in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Warn("kafka consumer error", zap.Error(err))
		}
	}()
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Error("kafka consume failed", zap.String("topic", c.topic), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

// handler implements sarama.ConsumerGroupHandler.
type handler struct {
	orders OrderEnqueuer
	log    *zap.Logger
}

func (h *handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			// A storage failure leaves the message unmarked so it is
			// redelivered by the next session.
			if err := h.handleMessage(sess.Context(), msg); err != nil {
				return err
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	p, err := DecodePurchase(msg.Value)
	if err != nil {
		h.log.Warn("dropping purchase message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	added, err := h.orders.Enqueue(ctx, persist.OrderRow{
		ExternalID: p.OrderID,
		Character:  p.Character,
		Coins:      p.Coins,
	})
	if err != nil {
		return err
	}
	if !added {
		h.log.Debug("duplicate purchase ignored", zap.String("order_id", p.OrderID))
		return nil
	}
	h.log.Info("purchase queued",
		zap.String("order_id", p.OrderID),
		zap.String("character", p.Character),
		zap.Int64("coins", p.Coins))
	return nil
}
