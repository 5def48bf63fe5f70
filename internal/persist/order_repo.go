package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/l1jgo/worldstore/internal/world"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderRow is one pending credit for a character. ExternalID is optional
// and makes ingest idempotent when set.
type OrderRow struct {
	OrderID    int64
	ExternalID string
	Character  string
	Coins      int64
	Processed  bool
	CreatedAt  time.Time
}

type OrderRepo struct {
	db  *DB
	log *zap.Logger
}

func NewOrderRepo(db *DB, log *zap.Logger) *OrderRepo {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderRepo{db: db, log: log}
}

// DrainUnprocessed marks every unprocessed order of character as processed
// and returns their coin amounts in order id order. Rows are locked for the
// duration, so each order is handed out once.
func (r *OrderRepo) DrainUnprocessed(ctx context.Context, character string) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "OrderRepo.DrainUnprocessed", trace.WithAttributes(attribute.String("character", character)))
	defer span.End()

	var coins []int64
	err := r.db.InTx(ctx, func(q Querier) error {
		rows, err := q.Query(ctx,
			`SELECT order_id, coins FROM character_orders WHERE character = $1 AND NOT processed ORDER BY order_id FOR UPDATE`,
			character,
		)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id, amount int64
			if err := rows.Scan(&id, &amount); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
			coins = append(coins, amount)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if _, err := q.Exec(ctx,
				`UPDATE character_orders SET processed = TRUE WHERE order_id = $1`, id,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("drain orders %s: %w", character, err)
	}
	return coins, nil
}

// Credit drains p's pending orders into p.Coins and returns the amount added.
func (r *OrderRepo) Credit(ctx context.Context, p *world.Player) (int64, error) {
	coins, err := r.DrainUnprocessed(ctx, p.Name)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range coins {
		total += c
	}
	if total != 0 {
		p.Coins += total
		r.log.Info("orders credited",
			zap.String("character", p.Name),
			zap.Int("orders", len(coins)),
			zap.Int64("coins", total))
	}
	return total, nil
}

// Enqueue appends an order. It reports false when an order with the same
// external id was already recorded.
func (r *OrderRepo) Enqueue(ctx context.Context, o OrderRow) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`INSERT INTO character_orders (character, coins, external_id) VALUES ($1, $2, NULLIF($3, '')) ON CONFLICT (external_id) DO NOTHING`,
		o.Character, o.Coins, o.ExternalID,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue order for %s: %w", o.Character, err)
	}
	return tag.RowsAffected() == 1, nil
}
