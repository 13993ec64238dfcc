// Package storage provides database access for the mediation bridge
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/admeshlabs/mediation-bridge/internal/mediation"
)

// Placement maps a host placement to its partner-side configuration
type Placement struct {
	ID          string           `json:"id"`
	PlacementID string           `json:"placement_id"`
	UnitID      string           `json:"unit_id"`
	Format      mediation.Format `json:"format"`
	// HeightHint is the configured banner height in density-independent
	// units; nil means no hint
	HeightHint *int      `json:"height_hint,omitempty"`
	Muted      bool      `json:"muted"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PlacementStore resolves host placements to partner configuration
type PlacementStore interface {
	// GetByPlacementID returns the active placement, or nil when absent
	GetByPlacementID(ctx context.Context, placementID string) (*Placement, error)
	// List returns all active placements
	List(ctx context.Context) ([]*Placement, error)
}

// PostgresPlacementStore provides database operations for placements
type PostgresPlacementStore struct {
	db *sql.DB
}

// NewPlacementStore creates a new placement store
func NewPlacementStore(db *sql.DB) *PostgresPlacementStore {
	return &PostgresPlacementStore{db: db}
}

// GetByPlacementID retrieves a placement by its host-side identifier
func (s *PostgresPlacementStore) GetByPlacementID(ctx context.Context, placementID string) (*Placement, error) {
	query := `
		SELECT id, placement_id, unit_id, format, height_hint, muted,
		       status, created_at, updated_at
		FROM placements
		WHERE placement_id = $1 AND status = 'active'
	`

	var p Placement
	err := s.db.QueryRowContext(ctx, query, placementID).Scan(
		&p.ID,
		&p.PlacementID,
		&p.UnitID,
		&p.Format,
		&p.HeightHint,
		&p.Muted,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil // Placement not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query placement: %w", err)
	}

	return &p, nil
}

// List retrieves all active placements
func (s *PostgresPlacementStore) List(ctx context.Context) ([]*Placement, error) {
	query := `
		SELECT id, placement_id, unit_id, format, height_hint, muted,
		       status, created_at, updated_at
		FROM placements
		WHERE status = 'active'
		ORDER BY placement_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list placements: %w", err)
	}
	defer rows.Close()

	var placements []*Placement
	for rows.Next() {
		var p Placement
		if err := rows.Scan(
			&p.ID,
			&p.PlacementID,
			&p.UnitID,
			&p.Format,
			&p.HeightHint,
			&p.Muted,
			&p.Status,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan placement: %w", err)
		}
		placements = append(placements, &p)
	}

	return placements, rows.Err()
}

// NewDBConnection creates a new database connection
func NewDBConnection(host, port, user, password, dbname, sslmode string) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// MemoryPlacementStore is an in-memory PlacementStore used when no
// database is configured
type MemoryPlacementStore struct {
	mu         sync.RWMutex
	placements map[string]*Placement
}

// NewMemoryPlacementStore creates a store seeded with the given placements
func NewMemoryPlacementStore(placements ...*Placement) *MemoryPlacementStore {
	s := &MemoryPlacementStore{placements: make(map[string]*Placement)}
	for _, p := range placements {
		s.placements[p.PlacementID] = p
	}
	return s
}

// GetByPlacementID returns the placement, or nil when absent
func (s *MemoryPlacementStore) GetByPlacementID(_ context.Context, placementID string) (*Placement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.placements[placementID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// List returns all placements
func (s *MemoryPlacementStore) List(_ context.Context) ([]*Placement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Placement, 0, len(s.placements))
	for _, p := range s.placements {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// Put inserts or replaces a placement
func (s *MemoryPlacementStore) Put(p *Placement) {
	s.mu.Lock()
	s.placements[p.PlacementID] = p
	s.mu.Unlock()
}
