package dashboard

import (
	"slices"

	"github.com/gosuda/pulse/internal/domain"
)

// InferRoles derives column roles from board order: the first column is
// pending, the last is completed and everything strictly between is in
// progress. Boards with two or fewer columns have no in-progress columns.
func InferRoles(columns []*domain.Column) domain.ColumnRoles {
	if len(columns) == 0 {
		return domain.ColumnRoles{}
	}

	ordered := slices.Clone(columns)
	slices.SortStableFunc(ordered, func(a, b *domain.Column) int {
		return a.Position - b.Position
	})

	roles := domain.ColumnRoles{
		PendingColumnID:   ordered[0].ID,
		CompletedColumnID: ordered[len(ordered)-1].ID,
	}
	if len(ordered) > 2 {
		roles.InProgressColumnIDs = make([]int64, 0, len(ordered)-2)
		for _, c := range ordered[1 : len(ordered)-1] {
			roles.InProgressColumnIDs = append(roles.InProgressColumnIDs, c.ID)
		}
	}

	return roles
}

// ResolveRoles combines explicit assignments with inference. When any
// assignment exists for a column still on the board, explicit tags win and
// only the roles nobody tagged fall back to board order. Assignments that
// point at columns no longer on the board are ignored.
func ResolveRoles(columns []*domain.Column, assignments []domain.RoleAssignment) domain.ColumnRoles {
	inferred := InferRoles(columns)

	onBoard := make(map[int64]struct{}, len(columns))
	for _, c := range columns {
		onBoard[c.ID] = struct{}{}
	}

	var (
		explicit   domain.ColumnRoles
		tagged     = make(map[int64]struct{})
		hasAny     bool
		hasInProg  bool
		hasPending bool
		hasDone    bool
	)
	for _, a := range assignments {
		if _, ok := onBoard[a.ColumnID]; !ok {
			continue
		}
		hasAny = true
		tagged[a.ColumnID] = struct{}{}
		switch a.Role {
		case domain.BucketPending:
			explicit.PendingColumnID = a.ColumnID
			hasPending = true
		case domain.BucketInProgress:
			explicit.InProgressColumnIDs = append(explicit.InProgressColumnIDs, a.ColumnID)
			hasInProg = true
		case domain.BucketCompleted:
			explicit.CompletedColumnID = a.ColumnID
			hasDone = true
		}
	}
	if !hasAny {
		return inferred
	}

	if !hasPending {
		if _, taken := tagged[inferred.PendingColumnID]; !taken {
			explicit.PendingColumnID = inferred.PendingColumnID
		}
	}
	if !hasDone {
		if _, taken := tagged[inferred.CompletedColumnID]; !taken {
			explicit.CompletedColumnID = inferred.CompletedColumnID
		}
	}
	if !hasInProg {
		for _, id := range inferred.InProgressColumnIDs {
			if _, taken := tagged[id]; !taken {
				explicit.InProgressColumnIDs = append(explicit.InProgressColumnIDs, id)
			}
		}
	}

	return explicit
}

// Classify assigns a task to a bucket. First match wins: completed column,
// in-progress column, pending column, then pending as the fallback.
func Classify(task *domain.Task, roles domain.ColumnRoles) domain.Bucket {
	switch {
	case roles.CompletedColumnID != 0 && task.ColumnID == roles.CompletedColumnID:
		return domain.BucketCompleted
	case roles.InProgress(task.ColumnID):
		return domain.BucketInProgress
	case roles.PendingColumnID != 0 && task.ColumnID == roles.PendingColumnID:
		return domain.BucketPending
	default:
		return domain.BucketPending
	}
}
