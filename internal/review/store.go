// Package review holds import sessions that still have conflicts waiting
// for an operator.
package review

import (
	"context"
	"sort"

	"driving-school-admin/internal/model"
)

type Store interface {
	// Create stores a session together with its pending conflicts.
	Create(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	// Update rewrites the outcome lists of an existing session. Pending
	// conflicts are only ever removed through ClaimConflict.
	Update(ctx context.Context, session *model.Session) error
	// ClaimConflict atomically removes a conflict and returns it. Only one
	// caller can claim a given conflict.
	ClaimConflict(ctx context.Context, sessionID, conflictID string) (model.ConflictItem, error)
	Delete(ctx context.Context, id string) error
}

var categoryRank = func() map[model.Category]int {
	rank := make(map[model.Category]int, len(model.ProcessingOrder))
	for i, c := range model.ProcessingOrder {
		rank[c] = i
	}
	return rank
}()

// sortConflicts restores the order in which the import met the rows.
func sortConflicts(items []model.ConflictItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if categoryRank[a.Category] != categoryRank[b.Category] {
			return categoryRank[a.Category] < categoryRank[b.Category]
		}
		return a.Row.Number < b.Row.Number
	})
}
