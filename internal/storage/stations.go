package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts the subset of pgxpool.Pool used by StationRepository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// StationRepository reads the region -> station reference table.
type StationRepository struct {
	q Querier
}

// NewStationRepository constructs a StationRepository backed by the given pool.
func NewStationRepository(pool *pgxpool.Pool) *StationRepository {
	return &StationRepository{q: pool}
}

// NewStationRepositoryWithQuerier constructs a StationRepository with a custom Querier (for tests).
func NewStationRepositoryWithQuerier(q Querier) *StationRepository {
	return &StationRepository{q: q}
}

// ListStations returns every mapped region keyed by its upper-case UF code.
func (r *StationRepository) ListStations(ctx context.Context) (map[string]string, error) {
	const q = `
		SELECT region, station_code
		FROM region_stations
		ORDER BY region
	`

	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying region stations: %w", err)
	}
	defer rows.Close()

	stations := make(map[string]string)
	for rows.Next() {
		var region, code string
		if err := rows.Scan(&region, &code); err != nil {
			return nil, fmt.Errorf("scanning region station row: %w", err)
		}
		stations[strings.ToUpper(strings.TrimSpace(region))] = strings.TrimSpace(code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating region station rows: %w", err)
	}

	return stations, nil
}
