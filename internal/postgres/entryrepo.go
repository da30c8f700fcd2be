package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `id, order_id, station_id, table_id, seat_id, items, routed_at, started_at, completed_at,
	priority, recall_count, notes, station_name, table_label, seat_label, updated_at, version`

const insertEntrySQL = `INSERT INTO routing_entries (` + entryColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

const updateEntrySQL = `UPDATE routing_entries SET
	started_at = $2, completed_at = $3, priority = $4, recall_count = $5, notes = $6, updated_at = $7, version = $8
	WHERE id = $1 AND version = $9`

type EntryRepo struct {
	pool *pgxpool.Pool
}

func (r *EntryRepo) Update(ctx context.Context, e *kitchen.RoutingEntry, expectedVersion int) error {
	ref := e.ID.String()
	tag, err := r.pool.Exec(ctx, updateEntrySQL, updateArgs(e, expectedVersion)...)
	if err != nil {
		return mapError("update entry", ref, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM routing_entries WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
		return mapError("update entry", ref, err)
	}
	if !exists {
		return kitchen.NewError("update entry", ref, kitchen.ErrNotFound, nil)
	}
	return kitchen.Errorf("update entry", ref, kitchen.ErrConflict, "version changed, expected %d", expectedVersion)
}

// UpdateMany locks the rows, checks every version, then writes them all.
func (r *EntryRepo) UpdateMany(ctx context.Context, entries []kitchen.RoutingEntry, expected map[kitchen.EntryID]int) error {
	ids := make([]kitchen.EntryID, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}

	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, version FROM routing_entries WHERE id = ANY($1) FOR UPDATE`, ids)
		if err != nil {
			return err
		}
		current := make(map[kitchen.EntryID]int, len(ids))
		for rows.Next() {
			var id kitchen.EntryID
			var version int
			if err := rows.Scan(&id, &version); err != nil {
				rows.Close()
				return err
			}
			current[id] = version
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			version, ok := current[id]
			if !ok {
				return kitchen.NewError("update entry", id.String(), kitchen.ErrNotFound, nil)
			}
			if version != expected[id] {
				return kitchen.Errorf("update entry", id.String(), kitchen.ErrConflict, "version %d, expected %d", version, expected[id])
			}
		}

		batch := &pgx.Batch{}
		for i := range entries {
			batch.Queue(updateEntrySQL, updateArgs(&entries[i], expected[entries[i].ID])...)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return mapError("update entries", "", err)
}

func (r *EntryRepo) FindByID(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM routing_entries WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("find entry", id.String(), err)
	}
	return e, nil
}

// List returns entries in station display order. The limit is applied
// after sorting because display order is not a column order.
func (r *EntryRepo) List(ctx context.Context, filter kitchen.EntryFilter) ([]kitchen.RoutingEntry, error) {
	where, args := entryWhere(filter)
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM routing_entries`+where+` ORDER BY routed_at`, args...)
	if err != nil {
		return nil, mapError("list entries", "", err)
	}
	defer rows.Close()

	result := make([]kitchen.RoutingEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, mapError("list entries", "", err)
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list entries", "", err)
	}

	kitchen.SortForStation(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// entryWhere builds the WHERE clause for an entry filter with numbered
// placeholders.
func entryWhere(f kitchen.EntryFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.StationID != nil {
		add("station_id = $%d", *f.StationID)
	}
	if f.TableID != nil {
		add("table_id = $%d", *f.TableID)
	}
	if f.OrderID != nil {
		add("order_id = $%d", *f.OrderID)
	}
	if len(f.TableIDs) > 0 {
		add("table_id = ANY($%d)", f.TableIDs)
	}
	switch {
	case f.Ready && f.DoneSince != nil:
		add("completed_at >= $%d", *f.DoneSince)
	case f.Ready:
		conds = append(conds, "completed_at IS NOT NULL")
	case f.Active && f.DoneSince != nil:
		add("(completed_at IS NULL OR completed_at >= $%d)", *f.DoneSince)
	case f.Active:
		conds = append(conds, "completed_at IS NULL")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func entryArgs(e *kitchen.RoutingEntry) []any {
	return []any{
		e.ID, e.OrderID, e.StationID, e.TableID, e.SeatID, e.Items, e.RoutedAt, e.StartedAt, e.CompletedAt,
		e.Priority, e.RecallCount, e.Notes, e.StationName, e.TableLabel, e.SeatLabel, e.UpdatedAt, e.Version,
	}
}

func updateArgs(e *kitchen.RoutingEntry, expectedVersion int) []any {
	return []any{
		e.ID, e.StartedAt, e.CompletedAt, e.Priority, e.RecallCount, e.Notes, e.UpdatedAt, e.Version, expectedVersion,
	}
}

func scanEntry(row pgx.Row) (*kitchen.RoutingEntry, error) {
	var e kitchen.RoutingEntry
	err := row.Scan(
		&e.ID, &e.OrderID, &e.StationID, &e.TableID, &e.SeatID, &e.Items, &e.RoutedAt, &e.StartedAt, &e.CompletedAt,
		&e.Priority, &e.RecallCount, &e.Notes, &e.StationName, &e.TableLabel, &e.SeatLabel, &e.UpdatedAt, &e.Version,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
