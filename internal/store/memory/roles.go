// Package memory holds process-local stand-ins for the persistent stores,
// used when no database is configured.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gosuda/pulse/internal/domain"
)

// RoleAssignmentRepo keeps column role assignments in memory. Contents are
// lost on restart.
type RoleAssignmentRepo struct {
	mu       sync.RWMutex
	projects map[int64][]domain.RoleAssignment
}

var _ domain.RoleAssignmentRepository = (*RoleAssignmentRepo)(nil)

func NewRoleAssignmentRepo() *RoleAssignmentRepo {
	return &RoleAssignmentRepo{projects: make(map[int64][]domain.RoleAssignment)}
}

func (r *RoleAssignmentRepo) ListByProject(_ context.Context, projectID int64) ([]domain.RoleAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.projects[projectID]), nil
}

func (r *RoleAssignmentRepo) Replace(_ context.Context, projectID int64, assignments []domain.RoleAssignment) error {
	if err := domain.ValidateAssignments(assignments); err != nil {
		return fmt.Errorf("memory.RoleAssignmentRepo.Replace: %w", err)
	}

	now := time.Now().UTC()
	stored := make([]domain.RoleAssignment, 0, len(assignments))
	for _, a := range assignments {
		a.ProjectID = projectID
		a.UpdatedAt = now
		stored = append(stored, a)
	}
	slices.SortFunc(stored, func(a, b domain.RoleAssignment) int {
		return cmp.Compare(a.ColumnID, b.ColumnID)
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(stored) == 0 {
		delete(r.projects, projectID)
		return nil
	}
	r.projects[projectID] = stored
	return nil
}

func (r *RoleAssignmentRepo) DeleteByProject(_ context.Context, projectID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[projectID]; !ok {
		return fmt.Errorf("memory.RoleAssignmentRepo.DeleteByProject: %w", domain.ErrNotFound)
	}
	delete(r.projects, projectID)
	return nil
}
