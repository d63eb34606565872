package domain

// ColumnID identifies one of the five fixed board columns.
type ColumnID string

const (
	ColBacklog ColumnID = "backlog"
	ColTodo    ColumnID = "todo"
	ColDoing   ColumnID = "doing"
	ColReview  ColumnID = "review"
	ColDone    ColumnID = "done"
)

// Column describes one fixed board stage.
type Column struct {
	ID    ColumnID `json:"id"`
	Title string   `json:"title"`
	Icon  string   `json:"icon"`
}

// Columns is the fixed column set in board order. The set is not user
// configurable.
var Columns = []Column{
	{ID: ColBacklog, Title: "Backlog", Icon: "📥"},
	{ID: ColTodo, Title: "A fazer", Icon: "🎯"},
	{ID: ColDoing, Title: "Em andamento", Icon: "⏳"},
	{ID: ColReview, Title: "Revisão", Icon: "🔎"},
	{ID: ColDone, Title: "Concluído", Icon: "🏁"},
}

// KnownColumn reports whether id belongs to the fixed column set.
func KnownColumn(id ColumnID) bool {
	for _, c := range Columns {
		if c.ID == id {
			return true
		}
	}
	return false
}

// ColumnTitle returns the display title for a column, falling back to the raw
// id for unknown values.
func ColumnTitle(id ColumnID) string {
	for _, c := range Columns {
		if c.ID == id {
			return c.Title
		}
	}
	return string(id)
}

// EntryKind distinguishes user notes from system-authored log entries.
type EntryKind string

const (
	EntryNote EntryKind = "note"
	EntryLog  EntryKind = "log"
)

// TimelineEntry is one item of a card's activity timeline.
type TimelineEntry struct {
	Type EntryKind `json:"type"`
	Ts   int64     `json:"ts"`
	Text string    `json:"text"`
}

// ChecklistItem is one entry of a card's checklist.
type ChecklistItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Card is a single task unit. Timeline is ordered most-recent-first; Tasks
// preserve insertion order.
type Card struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Details   string          `json:"details"`
	DueTs     *int64          `json:"dueTs"`
	CreatedAt int64           `json:"createdAt"`
	Tasks     []ChecklistItem `json:"tasks"`
	Timeline  []TimelineEntry `json:"timeline"`
}

// Clone returns a deep copy of the card.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	cp := *c
	if c.DueTs != nil {
		due := *c.DueTs
		cp.DueTs = &due
	}
	cp.Tasks = make([]ChecklistItem, len(c.Tasks))
	copy(cp.Tasks, c.Tasks)
	cp.Timeline = make([]TimelineEntry, len(c.Timeline))
	copy(cp.Timeline, c.Timeline)
	return &cp
}

func (c *Card) prepend(e TimelineEntry) {
	c.Timeline = append([]TimelineEntry{e}, c.Timeline...)
}

// Board is the authoritative in-memory state: a card dictionary, ordered id
// lists per column and an ordered archive list. A card id appears in at most
// one of those lists at any time.
type Board struct {
	Cards    map[string]*Card      `json:"cards"`
	Columns  map[ColumnID][]string `json:"columns"`
	Archived []string              `json:"archived"`
}

// NewBoard returns an empty board with all five column lists present.
func NewBoard() *Board {
	b := &Board{
		Cards:    map[string]*Card{},
		Columns:  map[ColumnID][]string{},
		Archived: []string{},
	}
	for _, c := range Columns {
		b.Columns[c.ID] = []string{}
	}
	return b
}

// Clone returns a deep copy of the board, safe to hand to the rendering
// layer or to an asynchronous persistence call.
func (b *Board) Clone() *Board {
	cp := NewBoard()
	for id, c := range b.Cards {
		cp.Cards[id] = c.Clone()
	}
	for _, col := range Columns {
		ids := make([]string, len(b.Columns[col.ID]))
		copy(ids, b.Columns[col.ID])
		cp.Columns[col.ID] = ids
	}
	cp.Archived = make([]string, len(b.Archived))
	copy(cp.Archived, b.Archived)
	return cp
}

// FindColumnOf returns the column holding the card. Archived or unknown
// cards report false.
func (b *Board) FindColumnOf(cardID string) (ColumnID, bool) {
	for _, col := range Columns {
		for _, id := range b.Columns[col.ID] {
			if id == cardID {
				return col.ID, true
			}
		}
	}
	return "", false
}

// RemoveFromAllColumns drops the card id from every column list. Safe to
// call for ids that are not present anywhere.
func (b *Board) RemoveFromAllColumns(cardID string) {
	for _, col := range Columns {
		b.Columns[col.ID] = removeID(b.Columns[col.ID], cardID)
	}
}

// IsArchived reports whether the card id is on the archive list.
func (b *Board) IsArchived(cardID string) bool {
	for _, id := range b.Archived {
		if id == cardID {
			return true
		}
	}
	return false
}

// Sanitize repairs a freshly loaded board: it guarantees all five column
// lists exist and drops column or archive references to ids missing from the
// card dictionary. Runs once per load, before first render.
func (b *Board) Sanitize() {
	if b.Cards == nil {
		b.Cards = map[string]*Card{}
	}
	if b.Columns == nil {
		b.Columns = map[ColumnID][]string{}
	}
	for _, col := range Columns {
		kept := make([]string, 0, len(b.Columns[col.ID]))
		for _, id := range b.Columns[col.ID] {
			if _, ok := b.Cards[id]; ok {
				kept = append(kept, id)
			}
		}
		b.Columns[col.ID] = kept
	}
	for id := range b.Columns {
		if !KnownColumn(id) {
			delete(b.Columns, id)
		}
	}
	kept := make([]string, 0, len(b.Archived))
	for _, id := range b.Archived {
		if _, ok := b.Cards[id]; ok {
			kept = append(kept, id)
		}
	}
	b.Archived = kept
}

func removeID(ids []string, cardID string) []string {
	kept := ids[:0]
	for _, id := range ids {
		if id != cardID {
			kept = append(kept, id)
		}
	}
	return kept
}

func prependID(ids []string, cardID string) []string {
	return append([]string{cardID}, ids...)
}
