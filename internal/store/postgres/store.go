package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/pulse/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS column_roles (
	project_id BIGINT      NOT NULL,
	column_id  BIGINT      NOT NULL,
	role       TEXT        NOT NULL CHECK (role IN ('pending', 'in_progress', 'completed')),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (project_id, column_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS column_roles_single_pending
	ON column_roles (project_id) WHERE role = 'pending';
CREATE UNIQUE INDEX IF NOT EXISTS column_roles_single_completed
	ON column_roles (project_id) WHERE role = 'completed';
`

type Store struct {
	pool  *pgxpool.Pool
	roles *RoleAssignmentRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:  pool,
		roles: NewRoleAssignmentRepo(pool),
	}, nil
}

// EnsureSchema creates the tables pulse owns when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Store.EnsureSchema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Roles() domain.RoleAssignmentRepository { return s.roles }
