package postgres

import (
	"context"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepo struct {
	pool *pgxpool.Pool
}

// Record inserts the order row and its entries in one transaction.
func (r *OrderRepo) Record(ctx context.Context, o *kitchen.Order, entries []kitchen.RoutingEntry) error {
	ref := o.ID.String()
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := `INSERT INTO orders (id, table_id, table_label, seat_id, seat_label, items, transcript, rush, created_at)
		      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		if _, err := tx.Exec(ctx, q, o.ID, o.TableID, o.TableLabel, o.SeatID, o.SeatLabel, o.Items, o.Transcript, o.Rush, o.CreatedAt); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i := range entries {
			batch.Queue(insertEntrySQL, entryArgs(&entries[i])...)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return mapError("record order", ref, err)
}

func (r *OrderRepo) FindByID(ctx context.Context, id kitchen.OrderID) (*kitchen.Order, error) {
	q := `SELECT id, table_id, table_label, seat_id, seat_label, items, transcript, rush, created_at FROM orders WHERE id = $1`
	var o kitchen.Order
	err := r.pool.QueryRow(ctx, q, id).Scan(&o.ID, &o.TableID, &o.TableLabel, &o.SeatID, &o.SeatLabel, &o.Items, &o.Transcript, &o.Rush, &o.CreatedAt)
	if err != nil {
		return nil, mapError("find order", id.String(), err)
	}
	return &o, nil
}
