package api

import (
	"kanban-api/domain"
)

type cardView struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Details   string                 `json:"details,omitempty"`
	Due       string                 `json:"due,omitempty"`
	DueLabel  string                 `json:"dueLabel"`
	DueClass  string                 `json:"dueClass"`
	CreatedAt int64                  `json:"createdAt"`
	Tasks     []domain.ChecklistItem `json:"tasks"`
	TasksDone int                    `json:"tasksDone"`
}

type columnView struct {
	ID    domain.ColumnID `json:"id"`
	Title string          `json:"title"`
	Icon  string          `json:"icon"`
	Cards []cardView      `json:"cards"`
}

type boardResponse struct {
	Columns  []columnView `json:"columns"`
	Archived []cardView   `json:"archived"`
}

type timelineEntryView struct {
	Type domain.EntryKind `json:"type"`
	Ts   int64            `json:"ts"`
	When string           `json:"when"`
	Text string           `json:"text"`
}

type timelineResponse struct {
	CardID  string              `json:"cardId"`
	Entries []timelineEntryView `json:"entries"`
}

func newCardView(c *domain.Card, now int64) cardView {
	v := cardView{
		ID:        c.ID,
		Title:     c.Title,
		Details:   c.Details,
		DueLabel:  domain.DueHuman(c.DueTs, now),
		DueClass:  domain.DueClass(c.DueTs, now),
		CreatedAt: c.CreatedAt,
		Tasks:     append([]domain.ChecklistItem{}, c.Tasks...),
	}
	if c.DueTs != nil {
		v.Due = domain.FormatISODate(*c.DueTs)
	}
	for _, t := range c.Tasks {
		if t.Done {
			v.TasksDone++
		}
	}
	return v
}

func newBoardResponse(b *domain.Board, now int64) boardResponse {
	resp := boardResponse{
		Columns:  make([]columnView, 0, len(domain.Columns)),
		Archived: make([]cardView, 0, len(b.Archived)),
	}
	for _, col := range domain.Columns {
		cv := columnView{ID: col.ID, Title: col.Title, Icon: col.Icon, Cards: []cardView{}}
		for _, id := range b.Columns[col.ID] {
			if c, ok := b.Cards[id]; ok {
				cv.Cards = append(cv.Cards, newCardView(c, now))
			}
		}
		resp.Columns = append(resp.Columns, cv)
	}
	for _, id := range b.Archived {
		if c, ok := b.Cards[id]; ok {
			resp.Archived = append(resp.Archived, newCardView(c, now))
		}
	}
	return resp
}

// newTimelineResponse filters a card's timeline by tab: "notes", "logs" or
// anything else for the full feed. Entries stay most-recent-first.
func newTimelineResponse(c *domain.Card, tab string) timelineResponse {
	resp := timelineResponse{CardID: c.ID, Entries: []timelineEntryView{}}
	for _, e := range c.Timeline {
		switch tab {
		case "notes":
			if e.Type != domain.EntryNote {
				continue
			}
		case "logs":
			if e.Type != domain.EntryLog {
				continue
			}
		}
		resp.Entries = append(resp.Entries, timelineEntryView{
			Type: e.Type,
			Ts:   e.Ts,
			When: domain.FormatDateTime(e.Ts),
			Text: e.Text,
		})
	}
	return resp
}
