package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/session"
	"kanban-api/storage"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	logger := log.New()
	logger.SetOutput(io.Discard)
	hub := NewHub()
	manager := session.NewManager(func(ownerID string) (*session.Session, error) {
		return session.New(session.Config{
			OwnerID: ownerID,
			Store:   store,
			Logger:  logger,
			Notify:  func() { hub.Notify(ownerID) },
		})
	})
	t.Cleanup(manager.Shutdown)

	e := echo.New()
	Register(e, manager, Anonymous{}, hub, logger)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body.String())
	}
}

func column(t *testing.T, resp boardResponse, id domain.ColumnID) columnView {
	t.Helper()
	for _, col := range resp.Columns {
		if col.ID == id {
			return col
		}
	}
	t.Fatalf("column %q missing from response", id)
	return columnView{}
}

func TestGetBoardSeedsExamples(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodGet, "/api/board", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp boardResponse
	decode(t, rec, &resp)
	if len(resp.Columns) != 5 {
		t.Fatalf("expected 5 columns, got %d", len(resp.Columns))
	}
	total := 0
	for _, col := range resp.Columns {
		total += len(col.Cards)
	}
	if total != 6 {
		t.Fatalf("expected 6 seeded cards, got %d", total)
	}
	todo := column(t, resp, domain.ColTodo)
	if len(todo.Cards) != 3 {
		t.Fatalf("expected 3 seeded cards in todo, got %d", len(todo.Cards))
	}
	if todo.Title != "A fazer" || todo.Icon != "🎯" {
		t.Fatalf("unexpected column presentation: %q %q", todo.Title, todo.Icon)
	}
	if todo.Cards[0].DueLabel != "Hoje" {
		t.Fatalf("expected first seeded card due today, got %q", todo.Cards[0].DueLabel)
	}
}

func TestCreateCardAtColumnHead(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/cards", `{"title":"Nova tarefa","col":"doing"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var created cardView
	decode(t, rec, &created)
	if created.ID == "" || created.Title != "Nova tarefa" {
		t.Fatalf("unexpected card: %+v", created)
	}
	if created.DueLabel != "Sem prazo" || created.DueClass != "none" {
		t.Fatalf("unexpected due presentation: %q/%q", created.DueLabel, created.DueClass)
	}

	var resp boardResponse
	decode(t, do(e, http.MethodGet, "/api/board", ""), &resp)
	doing := column(t, resp, domain.ColDoing)
	if doing.Cards[0].ID != created.ID {
		t.Fatalf("new card must sit at the head of its column")
	}
}

func TestCreateCardValidation(t *testing.T) {
	e := newTestServer(t)

	if rec := do(e, http.MethodPost, "/api/cards", `{"title":"   "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title: status %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/cards", `{"title":"x","col":"someday"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown column: status %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/cards", `{"title":"x","due":"15/06/2024"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed due date: status %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/cards", `{"title":"x","bogus":true}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d", rec.Code)
	}
}

func TestCardLifecycleFlow(t *testing.T) {
	e := newTestServer(t)

	var created cardView
	decode(t, do(e, http.MethodPost, "/api/cards", `{"title":"fluxo"}`), &created)
	id := created.ID

	rec := do(e, http.MethodPost, "/api/cards/"+id+"/move", `{"col":"review"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: status %d", rec.Code)
	}
	var resp boardResponse
	decode(t, rec, &resp)
	if review := column(t, resp, domain.ColReview); review.Cards[0].ID != id {
		t.Fatalf("moved card must head the target column")
	}

	rec = do(e, http.MethodPost, "/api/cards/"+id+"/archive", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: status %d", rec.Code)
	}
	decode(t, rec, &resp)
	if len(resp.Archived) == 0 || resp.Archived[0].ID != id {
		t.Fatalf("archived card must head the archive list")
	}

	rec = do(e, http.MethodPost, "/api/cards/"+id+"/restore", `{"col":"doing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: status %d", rec.Code)
	}
	decode(t, rec, &resp)
	if doing := column(t, resp, domain.ColDoing); doing.Cards[0].ID != id {
		t.Fatalf("restored card must head the chosen column")
	}

	if rec := do(e, http.MethodDelete, "/api/cards/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/cards/"+id+"/timeline", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted card still reachable: status %d", rec.Code)
	}
}

func TestDropReordersWithinColumn(t *testing.T) {
	e := newTestServer(t)

	var older, newer cardView
	decode(t, do(e, http.MethodPost, "/api/cards", `{"title":"antiga","col":"backlog"}`), &older)
	decode(t, do(e, http.MethodPost, "/api/cards", `{"title":"recente","col":"backlog"}`), &newer)

	rec := do(e, http.MethodPost, "/api/cards/"+older.ID+"/drop", `{"col":"backlog","before":"`+newer.ID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("drop: status %d", rec.Code)
	}
	var resp boardResponse
	decode(t, rec, &resp)
	backlog := column(t, resp, domain.ColBacklog)
	if backlog.Cards[0].ID != older.ID || backlog.Cards[1].ID != newer.ID {
		t.Fatalf("expected [antiga recente] after drop, got %+v", backlog.Cards)
	}
}

func TestTimelineTabs(t *testing.T) {
	e := newTestServer(t)

	var created cardView
	decode(t, do(e, http.MethodPost, "/api/cards", `{"title":"com nota"}`), &created)
	if rec := do(e, http.MethodPost, "/api/cards/"+created.ID+"/notes", `{"text":"uma observação"}`); rec.Code != http.StatusCreated {
		t.Fatalf("note: status %d", rec.Code)
	}

	var notes timelineResponse
	decode(t, do(e, http.MethodGet, "/api/cards/"+created.ID+"/timeline?tab=notes", ""), &notes)
	if len(notes.Entries) != 1 || notes.Entries[0].Text != "uma observação" {
		t.Fatalf("unexpected notes tab: %+v", notes.Entries)
	}

	var logs timelineResponse
	decode(t, do(e, http.MethodGet, "/api/cards/"+created.ID+"/timeline?tab=logs", ""), &logs)
	for _, entry := range logs.Entries {
		if entry.Type != domain.EntryLog {
			t.Fatalf("logs tab leaked a %q entry", entry.Type)
		}
	}

	var all timelineResponse
	decode(t, do(e, http.MethodGet, "/api/cards/"+created.ID+"/timeline", ""), &all)
	if len(all.Entries) != len(notes.Entries)+len(logs.Entries) {
		t.Fatalf("full feed must union notes and logs: %d vs %d+%d",
			len(all.Entries), len(notes.Entries), len(logs.Entries))
	}
	if all.Entries[0].Type != domain.EntryNote {
		t.Fatalf("newest entry must come first, got %q", all.Entries[0].Type)
	}
	if rec := do(e, http.MethodPost, "/api/cards/"+created.ID+"/notes", `{"text":"   "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank note: status %d", rec.Code)
	}
}

func TestChecklistEndpoints(t *testing.T) {
	e := newTestServer(t)

	var created cardView
	decode(t, do(e, http.MethodPost, "/api/cards", `{"title":"com checklist"}`), &created)

	rec := do(e, http.MethodPost, "/api/cards/"+created.ID+"/tasks", `{"text":"primeiro passo"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add task: status %d", rec.Code)
	}
	var card cardView
	decode(t, rec, &card)
	if len(card.Tasks) != 1 || card.TasksDone != 0 {
		t.Fatalf("unexpected checklist: %+v", card)
	}
	taskID := card.Tasks[0].ID

	rec = do(e, http.MethodPost, "/api/cards/"+created.ID+"/tasks/"+taskID+"/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status %d", rec.Code)
	}
	decode(t, rec, &card)
	if card.TasksDone != 1 {
		t.Fatalf("expected one done task, got %d", card.TasksDone)
	}

	rec = do(e, http.MethodDelete, "/api/cards/"+created.ID+"/tasks/"+taskID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: status %d", rec.Code)
	}
	decode(t, rec, &card)
	if len(card.Tasks) != 0 {
		t.Fatalf("expected empty checklist, got %+v", card.Tasks)
	}

	if rec := do(e, http.MethodPost, "/api/cards/"+created.ID+"/tasks/nope/toggle", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown task: status %d", rec.Code)
	}
}

func TestDueDateEndpoints(t *testing.T) {
	e := newTestServer(t)

	var created cardView
	decode(t, do(e, http.MethodPost, "/api/cards", `{"title":"com prazo"}`), &created)

	rec := do(e, http.MethodPut, "/api/cards/"+created.ID+"/due", `{"date":"2030-01-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set due: status %d", rec.Code)
	}
	var card cardView
	decode(t, rec, &card)
	if card.Due != "2030-01-01" || card.DueClass != "future" {
		t.Fatalf("unexpected due presentation: %+v", card)
	}

	rec = do(e, http.MethodPut, "/api/cards/"+created.ID+"/due", `{"date":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear due: status %d", rec.Code)
	}
	var cleared cardView
	decode(t, rec, &cleared)
	if cleared.Due != "" || cleared.DueLabel != "Sem prazo" {
		t.Fatalf("expected cleared deadline, got %+v", cleared)
	}

	if rec := do(e, http.MethodPut, "/api/cards/"+created.ID+"/due", `{"date":"not-a-date"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed date: status %d", rec.Code)
	}
}

func TestTitleAndDetailsEndpoints(t *testing.T) {
	e := newTestServer(t)

	var created cardView
	decode(t, do(e, http.MethodPost, "/api/cards", `{"title":"original"}`), &created)

	rec := do(e, http.MethodPut, "/api/cards/"+created.ID+"/title", `{"title":"  renomeada  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set title: status %d", rec.Code)
	}
	var card cardView
	decode(t, rec, &card)
	if card.Title != "renomeada" {
		t.Fatalf("expected trimmed title, got %q", card.Title)
	}

	if rec := do(e, http.MethodPut, "/api/cards/"+created.ID+"/title", `{"title":"   "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title: status %d", rec.Code)
	}

	// Submitting the current title again must succeed as a no-op.
	rec = do(e, http.MethodPut, "/api/cards/"+created.ID+"/title", `{"title":"renomeada"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unchanged title: status %d", rec.Code)
	}
	decode(t, rec, &card)
	if card.Title != "renomeada" {
		t.Fatalf("expected title kept, got %q", card.Title)
	}

	rec = do(e, http.MethodPut, "/api/cards/"+created.ID+"/details", `{"details":"mais contexto"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set details: status %d", rec.Code)
	}
	decode(t, rec, &card)
	if card.Details != "mais contexto" {
		t.Fatalf("expected details, got %q", card.Details)
	}
}

func TestUnknownCardIs404(t *testing.T) {
	e := newTestServer(t)

	paths := map[string]string{
		http.MethodPost:   "/api/cards/missing/archive",
		http.MethodDelete: "/api/cards/missing",
		http.MethodGet:    "/api/cards/missing/timeline",
	}
	for method, path := range paths {
		if rec := do(e, method, path, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: status %d", method, path, rec.Code)
		}
	}
	if rec := do(e, http.MethodPost, "/api/cards/missing/move", `{"col":"todo"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("move missing: status %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/cards/missing/duplicate", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("duplicate missing: status %d", rec.Code)
	}
}

func TestDuplicateCardSuffix(t *testing.T) {
	e := newTestServer(t)

	var created cardView
	decode(t, do(e, http.MethodPost, "/api/cards", `{"title":"modelo","col":"review"}`), &created)

	rec := do(e, http.MethodPost, "/api/cards/"+created.ID+"/duplicate", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("duplicate: status %d", rec.Code)
	}
	var dup cardView
	decode(t, rec, &dup)
	if dup.Title != "modelo (cópia)" {
		t.Fatalf("unexpected duplicate title: %q", dup.Title)
	}

	var resp boardResponse
	decode(t, do(e, http.MethodGet, "/api/board", ""), &resp)
	if review := column(t, resp, domain.ColReview); review.Cards[0].ID != dup.ID {
		t.Fatalf("duplicate must head the source column")
	}
}

func TestSignOutFlushesAndPersists(t *testing.T) {
	e := newTestServer(t)

	var created cardView
	decode(t, do(e, http.MethodPost, "/api/cards", `{"title":"persistida"}`), &created)

	if rec := do(e, http.MethodDelete, "/api/session", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("sign out: status %d", rec.Code)
	}

	// A fresh session must reload the persisted board, not reseed it.
	var resp boardResponse
	decode(t, do(e, http.MethodGet, "/api/board", ""), &resp)
	todo := column(t, resp, domain.ColTodo)
	if todo.Cards[0].ID != created.ID {
		t.Fatalf("expected persisted card after sign-out, got %+v", todo.Cards)
	}
}

type failingAuth struct{}

func (failingAuth) UserIDFromAuthHeader(string) (string, error) {
	return "", errors.New("missing authorization header")
}

func TestUnauthorizedRequests(t *testing.T) {
	logger := log.New()
	logger.SetOutput(io.Discard)
	e := echo.New()
	Register(e, nil, failingAuth{}, NewHub(), logger)

	for _, path := range []string{"/api/board", "/api/cards/x/timeline"} {
		if rec := do(e, http.MethodGet, path, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s: status %d", path, rec.Code)
		}
	}
	if rec := do(e, http.MethodDelete, "/api/session", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("sign out: status %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t)
	if rec := do(e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
}
