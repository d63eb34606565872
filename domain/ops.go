package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ops applies card operations to a board. Every operation referencing an
// unknown card id returns false without mutating or logging anything; absence
// is never an error.
type Ops struct {
	Board *Board

	// Now returns the current time in unix milliseconds.
	Now func() int64
	// NewID generates card and checklist item ids.
	NewID func() string
}

// NewOps wires a board with the default clock and uuid generator.
func NewOps(b *Board) *Ops {
	return &Ops{
		Board: b,
		Now:   func() int64 { return time.Now().UnixMilli() },
		NewID: uuid.NewString,
	}
}

// Create builds a card with an empty checklist and inserts it at the head of
// the target column. The initial timeline records creation, column placement
// and, when a due date is given, the deadline. Returns the new id, or false
// when the trimmed title is empty or the column unknown.
func (o *Ops) Create(title string, col ColumnID, dueTs *int64) (string, bool) {
	title = strings.TrimSpace(title)
	if title == "" || !KnownColumn(col) {
		return "", false
	}
	now := o.Now()
	id := o.NewID()
	c := &Card{
		ID:        id,
		Title:     title,
		DueTs:     dueTs,
		CreatedAt: now,
		Tasks:     []ChecklistItem{},
		Timeline: []TimelineEntry{
			{Type: EntryLog, Ts: now, Text: "Criou o card."},
			{Type: EntryLog, Ts: now, Text: fmt.Sprintf("Adicionou o card na coluna %s.", ColumnTitle(col))},
		},
	}
	if dueTs != nil {
		c.Timeline = append(c.Timeline, TimelineEntry{
			Type: EntryLog,
			Ts:   now,
			Text: fmt.Sprintf("Definiu o prazo do card para %s.", DueHuman(dueTs, now)),
		})
	}
	o.Board.Cards[id] = c
	o.Board.Columns[col] = prependID(o.Board.Columns[col], id)
	return id, true
}

// Duplicate deep-copies a card under a new id, marks the title as a copy and
// inserts the clone at the head of the source's column (todo when the source
// is unexpectedly columnless). Checklist and details carry over; the clone
// gets a fresh createdAt and a fresh two-entry timeline.
func (o *Ops) Duplicate(cardID string) (string, bool) {
	src, ok := o.Board.Cards[cardID]
	if !ok {
		return "", false
	}
	col, ok := o.Board.FindColumnOf(cardID)
	if !ok {
		col = ColTodo
	}
	now := o.Now()
	id := o.NewID()
	c := src.Clone()
	c.ID = id
	c.Title = src.Title + " (cópia)"
	c.CreatedAt = now
	c.Timeline = []TimelineEntry{
		{Type: EntryLog, Ts: now, Text: "Criou o card (duplicado)."},
		{Type: EntryLog, Ts: now, Text: fmt.Sprintf("Adicionou o card na coluna %s.", ColumnTitle(col))},
	}
	o.Board.Cards[id] = c
	o.Board.Columns[col] = prependID(o.Board.Columns[col], id)
	return id, true
}

// Move transfers a card to the head of the target column. No-op when the
// card is absent, archived, or already there.
func (o *Ops) Move(cardID string, to ColumnID) bool {
	if _, ok := o.Board.Cards[cardID]; !ok || !KnownColumn(to) {
		return false
	}
	from, ok := o.Board.FindColumnOf(cardID)
	if !ok || from == to {
		return false
	}
	o.Board.Columns[from] = removeID(o.Board.Columns[from], cardID)
	o.Board.Columns[to] = prependID(o.Board.Columns[to], cardID)
	o.Log(cardID, fmt.Sprintf("Moveu o card de %s → %s.", ColumnTitle(from), ColumnTitle(to)))
	return true
}

// Drop repositions a card inside the target column, immediately before
// beforeID when that card is present, at the tail otherwise. This is the only
// operation with explicit position control; every other insertion goes to the
// head.
func (o *Ops) Drop(cardID string, to ColumnID, beforeID string) bool {
	if _, ok := o.Board.Cards[cardID]; !ok || !KnownColumn(to) {
		return false
	}
	o.Board.RemoveFromAllColumns(cardID)
	o.Board.Archived = removeID(o.Board.Archived, cardID)
	ids := o.Board.Columns[to]
	inserted := false
	if beforeID != "" {
		for i, id := range ids {
			if id == beforeID {
				ids = append(ids[:i:i], append([]string{cardID}, ids[i:]...)...)
				inserted = true
				break
			}
		}
	}
	if !inserted {
		ids = append(ids, cardID)
	}
	o.Board.Columns[to] = ids
	o.Log(cardID, fmt.Sprintf("Moveu o card para %s.", ColumnTitle(to)))
	return true
}

// Archive removes a card from the column flow and prepends it to the archive
// list. Archiving an already archived card is a no-op, keeping the operation
// idempotent.
func (o *Ops) Archive(cardID string) bool {
	if _, ok := o.Board.Cards[cardID]; !ok {
		return false
	}
	if o.Board.IsArchived(cardID) {
		return false
	}
	from, hadColumn := o.Board.FindColumnOf(cardID)
	o.Board.RemoveFromAllColumns(cardID)
	o.Board.Archived = prependID(o.Board.Archived, cardID)
	if hadColumn {
		o.Log(cardID, fmt.Sprintf("Arquivou o card (veio de %s).", ColumnTitle(from)))
	} else {
		o.Log(cardID, "Arquivou o card.")
	}
	return true
}

// Restore moves an archived card back to the head of the target column.
func (o *Ops) Restore(cardID string, to ColumnID) bool {
	if _, ok := o.Board.Cards[cardID]; !ok || !KnownColumn(to) {
		return false
	}
	o.Board.Archived = removeID(o.Board.Archived, cardID)
	o.Board.RemoveFromAllColumns(cardID)
	o.Board.Columns[to] = prependID(o.Board.Columns[to], cardID)
	o.Log(cardID, fmt.Sprintf("Restaurou o card para %s.", ColumnTitle(to)))
	return true
}

// Delete removes the card from every list and from the dictionary.
// Irreversible.
func (o *Ops) Delete(cardID string) bool {
	if _, ok := o.Board.Cards[cardID]; !ok {
		return false
	}
	o.Board.RemoveFromAllColumns(cardID)
	o.Board.Archived = removeID(o.Board.Archived, cardID)
	delete(o.Board.Cards, cardID)
	return true
}

// Note prepends a user-authored timeline entry.
func (o *Ops) Note(cardID, text string) bool {
	text = strings.TrimSpace(text)
	c, ok := o.Board.Cards[cardID]
	if !ok || text == "" {
		return false
	}
	c.prepend(TimelineEntry{Type: EntryNote, Ts: o.Now(), Text: text})
	return true
}

// Log prepends a system-authored timeline entry describing a state change.
func (o *Ops) Log(cardID, text string) bool {
	c, ok := o.Board.Cards[cardID]
	if !ok {
		return false
	}
	c.prepend(TimelineEntry{Type: EntryLog, Ts: o.Now(), Text: text})
	return true
}

// SetDueDate parses an ISO calendar date into a local day-start timestamp,
// or clears the deadline when iso is empty. A log entry is written only when
// the value actually changes.
func (o *Ops) SetDueDate(cardID, iso string) bool {
	c, ok := o.Board.Cards[cardID]
	if !ok {
		return false
	}
	if iso == "" {
		if c.DueTs == nil {
			return false
		}
		c.DueTs = nil
		o.Log(cardID, "Removeu o prazo do card.")
		return true
	}
	ts, err := ParseISODate(iso)
	if err != nil {
		return false
	}
	ts = DayStart(ts)
	if c.DueTs != nil && *c.DueTs == ts {
		return false
	}
	c.DueTs = &ts
	o.Log(cardID, fmt.Sprintf("Definiu o prazo do card para %s (%s).", DueHuman(&ts, o.Now()), iso))
	return true
}

// SetTitle replaces the card title. Title edits persist without a timeline
// entry to avoid flooding the log on every keystroke.
func (o *Ops) SetTitle(cardID, title string) bool {
	title = strings.TrimSpace(title)
	c, ok := o.Board.Cards[cardID]
	if !ok || title == "" || c.Title == title {
		return false
	}
	c.Title = title
	return true
}

// SetDetails replaces the card details, logging only on actual change.
func (o *Ops) SetDetails(cardID, details string) bool {
	c, ok := o.Board.Cards[cardID]
	if !ok || c.Details == details {
		return false
	}
	c.Details = details
	o.Log(cardID, "Atualizou os detalhes do card.")
	return true
}

// AddTask appends a checklist item and returns its id.
func (o *Ops) AddTask(cardID, text string) (string, bool) {
	text = strings.TrimSpace(text)
	c, ok := o.Board.Cards[cardID]
	if !ok || text == "" {
		return "", false
	}
	id := o.NewID()
	c.Tasks = append(c.Tasks, ChecklistItem{ID: id, Text: text})
	o.Log(cardID, "Adicionou uma tarefa no checklist.")
	return id, true
}

// ToggleTask flips the done flag of a checklist item.
func (o *Ops) ToggleTask(cardID, taskID string) bool {
	c, ok := o.Board.Cards[cardID]
	if !ok {
		return false
	}
	for i := range c.Tasks {
		if c.Tasks[i].ID != taskID {
			continue
		}
		c.Tasks[i].Done = !c.Tasks[i].Done
		if c.Tasks[i].Done {
			o.Log(cardID, "Concluiu uma tarefa do checklist.")
		} else {
			o.Log(cardID, "Reabriu uma tarefa do checklist.")
		}
		return true
	}
	return false
}

// RemoveTask deletes a checklist item.
func (o *Ops) RemoveTask(cardID, taskID string) bool {
	c, ok := o.Board.Cards[cardID]
	if !ok {
		return false
	}
	for i := range c.Tasks {
		if c.Tasks[i].ID == taskID {
			c.Tasks = append(c.Tasks[:i:i], c.Tasks[i+1:]...)
			o.Log(cardID, "Excluiu uma tarefa do checklist.")
			return true
		}
	}
	return false
}
