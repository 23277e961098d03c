package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/pulse/internal/domain"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type RoleAssignmentRepo struct {
	pool *pgxpool.Pool
}

func NewRoleAssignmentRepo(pool *pgxpool.Pool) *RoleAssignmentRepo {
	return &RoleAssignmentRepo{pool: pool}
}

func (r *RoleAssignmentRepo) ListByProject(ctx context.Context, projectID int64) ([]domain.RoleAssignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT project_id, column_id, role, updated_at
		 FROM column_roles WHERE project_id = $1 ORDER BY column_id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("roleAssignmentRepo.ListByProject: %w", err)
	}
	defer rows.Close()

	var out []domain.RoleAssignment
	for rows.Next() {
		var (
			a    domain.RoleAssignment
			role string
		)
		err = rows.Scan(&a.ProjectID, &a.ColumnID, &role, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("roleAssignmentRepo.ListByProject: scan: %w", err)
		}
		a.Role = domain.Bucket(role)
		out = append(out, a)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("roleAssignmentRepo.ListByProject: rows: %w", err)
	}

	return out, nil
}

// Replace swaps a project's assignments atomically. An empty slice clears them.
func (r *RoleAssignmentRepo) Replace(ctx context.Context, projectID int64, assignments []domain.RoleAssignment) error {
	if err := domain.ValidateAssignments(assignments); err != nil {
		return fmt.Errorf("roleAssignmentRepo.Replace: %w", err)
	}

	now := time.Now().UTC()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM column_roles WHERE project_id = $1`, projectID); err != nil {
			return err
		}
		for _, a := range assignments {
			if _, err := tx.Exec(ctx,
				`INSERT INTO column_roles (project_id, column_id, role, updated_at)
				 VALUES ($1, $2, $3, $4)`,
				projectID, a.ColumnID, string(a.Role), now,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("roleAssignmentRepo.Replace: %w", domain.ErrConflict)
		}
		return fmt.Errorf("roleAssignmentRepo.Replace: %w", err)
	}

	return nil
}

func (r *RoleAssignmentRepo) DeleteByProject(ctx context.Context, projectID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM column_roles WHERE project_id = $1`,
		projectID,
	)
	if err != nil {
		return fmt.Errorf("roleAssignmentRepo.DeleteByProject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("roleAssignmentRepo.DeleteByProject: %w", domain.ErrNotFound)
	}

	return nil
}
