package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

const edmInt64 = "Edm.Int64"

// Remote persists one table row per card, partitioned by owner id. Writes are
// last-write-wins; there is no version merging between sessions.
type Remote struct {
	table *aztables.Client
}

// NewRemote creates a Remote store from the given connection string.
func NewRemote(connStr, cardsTable string) (*Remote, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Remote{table: svc.NewClient(cardsTable)}, nil
}

func (r *Remote) Granularity() Granularity { return GranularityRecord }

// cardEntity is the stored row shape. Checklist and Notes hold JSON
// sub-documents; DueDate is an ISO calendar date or empty.
type cardEntity struct {
	aztables.Entity
	Title         string `json:"Title"`
	Col           string `json:"Col"`
	Position      int    `json:"Position"`
	Details       string `json:"Details"`
	DueDate       string `json:"DueDate"`
	Archived      bool   `json:"Archived"`
	Checklist     string `json:"Checklist"`
	Notes         string `json:"Notes"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

// cardUpdate carries a merge-mode partial update for a card row.
type cardUpdate struct {
	entityKeys
	Title         *string `json:"Title,omitempty"`
	Col           *string `json:"Col,omitempty"`
	Position      *int    `json:"Position,omitempty"`
	Details       *string `json:"Details,omitempty"`
	DueDate       *string `json:"DueDate,omitempty"`
	Archived      *bool   `json:"Archived,omitempty"`
	Checklist     *string `json:"Checklist,omitempty"`
	Notes         *string `json:"Notes,omitempty"`
	UpdatedAt     int64   `json:"UpdatedAt,string"`
	UpdatedAtType string  `json:"UpdatedAt@odata.type"`
}

func encodeCard(ownerID string, card *domain.Card, col domain.ColumnID, position int, archived bool) (cardEntity, error) {
	checklist, err := json.Marshal(card.Tasks)
	if err != nil {
		return cardEntity{}, err
	}
	notes, err := json.Marshal(card.Timeline)
	if err != nil {
		return cardEntity{}, err
	}
	due := ""
	if card.DueTs != nil {
		due = domain.FormatISODate(*card.DueTs)
	}
	return cardEntity{
		Entity:        aztables.Entity{PartitionKey: ownerID, RowKey: card.ID},
		Title:         card.Title,
		Col:           string(col),
		Position:      position,
		Details:       card.Details,
		DueDate:       due,
		Archived:      archived,
		Checklist:     string(checklist),
		Notes:         string(notes),
		CreatedAt:     card.CreatedAt,
		CreatedAtType: edmInt64,
		UpdatedAt:     time.Now().UnixMilli(),
		UpdatedAtType: edmInt64,
	}, nil
}

func decodeCard(ent cardEntity) (*domain.Card, error) {
	c := &domain.Card{
		ID:        ent.RowKey,
		Title:     ent.Title,
		Details:   ent.Details,
		CreatedAt: ent.CreatedAt,
		Tasks:     []domain.ChecklistItem{},
		Timeline:  []domain.TimelineEntry{},
	}
	if ent.DueDate != "" {
		ts, err := domain.ParseISODate(ent.DueDate)
		if err != nil {
			return nil, err
		}
		c.DueTs = &ts
	}
	if ent.Checklist != "" {
		if err := json.Unmarshal([]byte(ent.Checklist), &c.Tasks); err != nil {
			return nil, err
		}
	}
	if ent.Notes != "" {
		if err := json.Unmarshal([]byte(ent.Notes), &c.Timeline); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadBoard lists the owner's partition and assembles a board. Active cards
// are ordered by (col, position, createdAt); archived cards by most recent
// update. Returns (nil, nil) when the owner has no rows yet.
func (r *Remote) LoadBoard(ctx context.Context, ownerID string) (*domain.Board, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := r.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var rows []cardEntity
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent cardEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			rows = append(rows, ent)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return boardFromRows(rows)
}

func boardFromRows(rows []cardEntity) (*domain.Board, error) {
	b := domain.NewBoard()

	var active, archived []cardEntity
	for _, ent := range rows {
		if ent.Archived {
			archived = append(archived, ent)
		} else {
			active = append(active, ent)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Col != active[j].Col {
			return active[i].Col < active[j].Col
		}
		if active[i].Position != active[j].Position {
			return active[i].Position < active[j].Position
		}
		return active[i].CreatedAt < active[j].CreatedAt
	})
	sort.SliceStable(archived, func(i, j int) bool {
		return archived[i].UpdatedAt > archived[j].UpdatedAt
	})

	for _, ent := range active {
		card, err := decodeCard(ent)
		if err != nil {
			return nil, err
		}
		col := domain.ColumnID(ent.Col)
		if !domain.KnownColumn(col) {
			col = domain.ColTodo
		}
		b.Cards[card.ID] = card
		b.Columns[col] = append(b.Columns[col], card.ID)
	}
	for _, ent := range archived {
		card, err := decodeCard(ent)
		if err != nil {
			return nil, err
		}
		b.Cards[card.ID] = card
		b.Archived = append(b.Archived, card.ID)
	}
	return b, nil
}

// CreateRecord inserts or replaces the row for a card.
func (r *Remote) CreateRecord(ctx context.Context, ownerID string, card *domain.Card, col domain.ColumnID, position int, archived bool) error {
	ent, err := encodeCard(ownerID, card, col, position, archived)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = r.table.UpsertEntity(ctx, payload, nil)
	return err
}

// UpdateRecord merges a partial update into the card's row.
func (r *Remote) UpdateRecord(ctx context.Context, ownerID, cardID string, patch RecordPatch) error {
	upd := cardUpdate{
		entityKeys:    entityKeys{PartitionKey: ownerID, RowKey: cardID},
		Title:         patch.Title,
		Details:       patch.Details,
		Position:      patch.Position,
		DueDate:       patch.DueDate,
		Archived:      patch.Archived,
		UpdatedAt:     time.Now().UnixMilli(),
		UpdatedAtType: edmInt64,
	}
	if patch.Col != nil {
		upd.Col = to.Ptr(string(*patch.Col))
	}
	if patch.Checklist != nil {
		data, err := json.Marshal(patch.Checklist)
		if err != nil {
			return err
		}
		upd.Checklist = to.Ptr(string(data))
	}
	if patch.Notes != nil {
		data, err := json.Marshal(patch.Notes)
		if err != nil {
			return err
		}
		upd.Notes = to.Ptr(string(data))
	}
	payload, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = r.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

// DeleteRecord removes the card's row. Deleting an absent row is not an
// error.
func (r *Remote) DeleteRecord(ctx context.Context, ownerID, cardID string) error {
	_, err := r.table.DeleteEntity(ctx, ownerID, cardID, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// SaveBoard reconciles the whole partition with the given board: every card
// is upserted with its current placement and rows for deleted cards are
// removed. Used to materialize a seeded board and to migrate a local board
// into a signed-in session.
func (r *Remote) SaveBoard(ctx context.Context, ownerID string, b *domain.Board) error {
	existing, err := r.rowKeys(ctx, ownerID)
	if err != nil {
		return err
	}
	keep := map[string]bool{}
	for _, col := range domain.Columns {
		for pos, id := range b.Columns[col.ID] {
			card, ok := b.Cards[id]
			if !ok {
				continue
			}
			if err := r.CreateRecord(ctx, ownerID, card, col.ID, pos, false); err != nil {
				return err
			}
			keep[id] = true
		}
	}
	for pos, id := range b.Archived {
		card, ok := b.Cards[id]
		if !ok {
			continue
		}
		if err := r.CreateRecord(ctx, ownerID, card, "", pos, true); err != nil {
			return err
		}
		keep[id] = true
	}
	for _, id := range existing {
		if !keep[id] {
			if err := r.DeleteRecord(ctx, ownerID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Remote) rowKeys(ctx context.Context, ownerID string) ([]string, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	sel := "RowKey"
	pager := r.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: &sel})
	var keys []string
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent entityKeys
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			keys = append(keys, ent.RowKey)
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
