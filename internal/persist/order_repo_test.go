package persist

import (
	"context"
	"testing"

	"github.com/l1jgo/worldstore/internal/world"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectDrain(mock pgxmock.PgxPoolIface, character string, orders map[int64]int64, ids ...int64) {
	mock.ExpectBegin()
	rows := pgxmock.NewRows([]string{"order_id", "coins"})
	for _, id := range ids {
		rows.AddRow(id, orders[id])
	}
	mock.ExpectQuery(sqlRe("SELECT order_id, coins FROM character_orders WHERE character = $1 AND NOT processed ORDER BY order_id FOR UPDATE")).
		WithArgs(character).
		WillReturnRows(rows)
	for _, id := range ids {
		mock.ExpectExec(sqlRe("UPDATE character_orders SET processed = TRUE WHERE order_id = $1")).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	mock.ExpectCommit()
}

func TestDrainUnprocessed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepo(db, nil)

	expectDrain(mock, "alice", map[int64]int64{4: 10, 7: 20, 9: 30}, 4, 7, 9)
	expectDrain(mock, "alice", nil)

	coins, err := repo.DrainUnprocessed(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, coins)

	coins, err = repo.DrainUnprocessed(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, coins)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditAddsCoins(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepo(db, nil)
	expectDrain(mock, "alice", map[int64]int64{1: 5, 2: 15}, 1, 2)

	p := &world.Player{Name: "alice", Coins: 100}
	total, err := repo.Credit(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
	assert.Equal(t, int64(120), p.Coins)
}

func TestEnqueueIsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepo(db, nil)
	order := OrderRow{ExternalID: "6f1c2b9e-3f57-4a43-9d1a-1f2e3d4c5b6a", Character: "alice", Coins: 50}

	mock.ExpectExec(sqlRe("INSERT INTO character_orders (character, coins, external_id) VALUES ($1, $2, NULLIF($3, '')) ON CONFLICT (external_id) DO NOTHING")).
		WithArgs("alice", int64(50), order.ExternalID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sqlRe("INSERT INTO character_orders")).
		WithArgs("alice", int64(50), order.ExternalID).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	added, err := repo.Enqueue(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.Enqueue(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, added)
	assert.NoError(t, mock.ExpectationsWereMet())
}
