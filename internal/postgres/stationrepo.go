package postgres

import (
	"context"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const stationColumns = `id, name, category, color, active, position, created_at, updated_at`

type StationRepo struct {
	pool *pgxpool.Pool
}

func (r *StationRepo) Create(ctx context.Context, s *kitchen.Station) error {
	q := `INSERT INTO stations (` + stationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, q, s.ID, s.Name, s.Category, s.Color, s.Active, s.Position, s.CreatedAt, s.UpdatedAt)
	return mapError("create station", s.ID.String(), err)
}

func (r *StationRepo) Update(ctx context.Context, s *kitchen.Station) error {
	q := `UPDATE stations SET name = $2, category = $3, color = $4, active = $5, position = $6, updated_at = $7 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, s.ID, s.Name, s.Category, s.Color, s.Active, s.Position, s.UpdatedAt)
	if err != nil {
		return mapError("update station", s.ID.String(), err)
	}
	if tag.RowsAffected() == 0 {
		return kitchen.NewError("update station", s.ID.String(), kitchen.ErrNotFound, nil)
	}
	return nil
}

func (r *StationRepo) FindByID(ctx context.Context, id kitchen.StationID) (*kitchen.Station, error) {
	q := `SELECT ` + stationColumns + ` FROM stations WHERE id = $1`
	s, err := scanStation(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapError("find station", id.String(), err)
	}
	return s, nil
}

func (r *StationRepo) List(ctx context.Context) ([]kitchen.Station, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stationColumns+` FROM stations ORDER BY position, name`)
	if err != nil {
		return nil, mapError("list stations", "", err)
	}
	defer rows.Close()

	result := make([]kitchen.Station, 0)
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, mapError("list stations", "", err)
		}
		result = append(result, *s)
	}
	return result, mapError("list stations", "", rows.Err())
}

func scanStation(row pgx.Row) (*kitchen.Station, error) {
	var s kitchen.Station
	err := row.Scan(&s.ID, &s.Name, &s.Category, &s.Color, &s.Active, &s.Position, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
