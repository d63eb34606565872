package storage

import (
	"context"

	"kanban-api/domain"
)

// Granularity tells the session how an adapter wants to be written to.
type Granularity int

const (
	// GranularityBoard adapters persist the whole serialized board per save.
	GranularityBoard Granularity = iota
	// GranularityRecord adapters persist one record per card.
	GranularityRecord
)

// RecordPatch carries a partial update for a stored card record. Nil fields
// are left untouched; a pointer to the zero value writes the zero value.
type RecordPatch struct {
	Title    *string
	Details  *string
	Col      *domain.ColumnID
	Position *int
	// DueDate is an ISO calendar date; an empty string clears the deadline.
	DueDate   *string
	Archived  *bool
	Checklist []domain.ChecklistItem
	Notes     []domain.TimelineEntry
}

// Store is the persistence strategy behind a board session, selected once at
// session start. LoadBoard returns (nil, nil) when the owner has no stored
// board yet; callers treat that as "seed me". Every write may fail and must
// propagate the failure to the caller.
type Store interface {
	LoadBoard(ctx context.Context, ownerID string) (*domain.Board, error)
	// SaveBoard persists the whole board at once. Record adapters implement
	// it as a full partition reconcile, used when migrating a board between
	// adapters.
	SaveBoard(ctx context.Context, ownerID string, b *domain.Board) error
	CreateRecord(ctx context.Context, ownerID string, card *domain.Card, col domain.ColumnID, position int, archived bool) error
	UpdateRecord(ctx context.Context, ownerID, cardID string, patch RecordPatch) error
	DeleteRecord(ctx context.Context, ownerID, cardID string) error
	Granularity() Granularity
}
