package session

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/storage"
)

// ErrNotSignedIn is raised before any remote write is attempted for a
// session that has no owner identity.
var ErrNotSignedIn = errors.New("sign in to save your board")

const (
	defaultDebounceWindow = 500 * time.Millisecond
	defaultPersistTimeout = 10 * time.Second
	defaultQueueSize      = 64
)

// Config carries the collaborators a session needs.
type Config struct {
	OwnerID string
	// Store is the persistence strategy, selected once at session start.
	Store storage.Store
	// Fallback, when set, is consulted for reads after a failed primary
	// load (e.g. the last local cache of a remote board).
	Fallback storage.Store
	Logger   *log.Logger
	// Notify is invoked after every applied mutation so the rendering layer
	// can refresh. Optional.
	Notify func()
	// OnPersistFailure surfaces a failed write to the user, naming the
	// attempted action. The in-memory mutation is never rolled back.
	// Optional.
	OnPersistFailure func(action string, err error)
	// DebounceWindow coalesces free-text writes per card id.
	DebounceWindow time.Duration
	// PersistTimeout bounds each persistence batch.
	PersistTimeout time.Duration
}

type placement struct {
	col      domain.ColumnID
	position int
	archived bool
}

type jobKind int

const (
	jobSaveBoard jobKind = iota
	jobCreate
	jobUpdate
	jobDelete
)

type job struct {
	kind     jobKind
	id       string
	card     *domain.Card
	col      domain.ColumnID
	position int
	archived bool
	patch    storage.RecordPatch
	board    *domain.Board
}

type batch struct {
	action string
	jobs   []job
}

// Session owns one in-memory board and keeps it reconciled with its store.
// Mutations apply synchronously under an explicit lock; persistence runs on a
// single background worker so writes reach the store in the order issued.
type Session struct {
	cfg   Config
	logue *log.Logger

	mu    sync.Mutex
	board *domain.Board
	ops   *domain.Ops
	known map[string]placement

	deb *debouncer

	// qmu serializes sends with Close so the queue is never closed under a
	// pending send.
	qmu       sync.Mutex
	queue     chan batch
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New builds a session. Record-granular stores require an owner identity up
// front; failing here keeps the sign-in error distinct from write failures.
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.Store.Granularity() == storage.GranularityRecord && cfg.OwnerID == "" {
		return nil, ErrNotSignedIn
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = defaultDebounceWindow
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	s := &Session{
		cfg:   cfg,
		logue: cfg.Logger,
		board: domain.NewBoard(),
		queue: make(chan batch, defaultQueueSize),
	}
	s.ops = domain.NewOps(s.board)
	s.deb = newDebouncer(cfg.DebounceWindow)
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Load replaces the in-memory board: primary store first, then the fallback
// cache, then the seeded example board. The sanitizer runs once before the
// first render notification. A store that answers "no board yet" gets the
// seed persisted; a store that FAILED to answer does not, since the owner's
// real data may still exist behind the outage.
func (s *Session) Load(ctx context.Context) {
	board, err := s.cfg.Store.LoadBoard(ctx, s.cfg.OwnerID)
	degraded := err != nil
	if err != nil {
		s.logue.WithError(err).WithField("owner", s.cfg.OwnerID).Warn("board load failed")
		if s.cfg.Fallback != nil {
			board, err = s.cfg.Fallback.LoadBoard(ctx, s.cfg.OwnerID)
			if err != nil {
				s.logue.WithError(err).Warn("fallback board load failed")
				board = nil
			}
		}
	}
	seeded := false
	if board == nil {
		board = domain.SeedExamples()
		seeded = true
	}
	board.Sanitize()

	s.mu.Lock()
	s.board = board
	s.ops = domain.NewOps(board)
	s.known = placements(board)
	s.mu.Unlock()

	if seeded && !degraded {
		s.enqueue(batch{action: "inicializar quadro", jobs: []job{{kind: jobSaveBoard, board: board.Clone()}}})
	}
	s.notify()
}

// Snapshot returns a deep copy of the current board for the rendering layer.
func (s *Session) Snapshot() *domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// OwnerID returns the identity this session persists under.
func (s *Session) OwnerID() string { return s.cfg.OwnerID }

// CreateCard inserts a new card at the head of the column. dueISO may be
// empty; a malformed date creates the card without a deadline.
func (s *Session) CreateCard(title string, col domain.ColumnID, dueISO string) string {
	var due *int64
	if dueISO != "" {
		if ts, err := domain.ParseISODate(dueISO); err == nil {
			ts = domain.DayStart(ts)
			due = &ts
		}
	}
	s.mu.Lock()
	id, ok := s.ops.Create(title, col, due)
	if !ok {
		s.mu.Unlock()
		return ""
	}
	b := s.batchLocked("criar card", id)
	s.mu.Unlock()
	s.enqueue(b)
	s.notify()
	return id
}

// DuplicateCard clones a card into its source column.
func (s *Session) DuplicateCard(cardID string) string {
	s.mu.Lock()
	id, ok := s.ops.Duplicate(cardID)
	if !ok {
		s.mu.Unlock()
		return ""
	}
	b := s.batchLocked("duplicar card", id)
	s.mu.Unlock()
	s.enqueue(b)
	s.notify()
	return id
}

// MoveCard sends a card to the head of another column.
func (s *Session) MoveCard(cardID string, to domain.ColumnID) bool {
	return s.apply("mover card", cardID, func() bool { return s.ops.Move(cardID, to) })
}

// DropCard repositions a card inside a column, before beforeID when given.
func (s *Session) DropCard(cardID string, to domain.ColumnID, beforeID string) bool {
	return s.apply("reordenar card", cardID, func() bool { return s.ops.Drop(cardID, to, beforeID) })
}

// ArchiveCard moves a card to the archive list.
func (s *Session) ArchiveCard(cardID string) bool {
	return s.apply("arquivar card", cardID, func() bool { return s.ops.Archive(cardID) })
}

// RestoreCard returns an archived card to a column.
func (s *Session) RestoreCard(cardID string, to domain.ColumnID) bool {
	return s.apply("restaurar card", cardID, func() bool { return s.ops.Restore(cardID, to) })
}

// DeleteCard removes a card for good.
func (s *Session) DeleteCard(cardID string) bool {
	return s.apply("excluir card", cardID, func() bool { return s.ops.Delete(cardID) })
}

// AddNote prepends a user note to the card's timeline.
func (s *Session) AddNote(cardID, text string) bool {
	return s.apply("adicionar nota", cardID, func() bool { return s.ops.Note(cardID, text) })
}

// SetDueDate sets or clears the card deadline from an ISO date.
func (s *Session) SetDueDate(cardID, iso string) bool {
	return s.apply("definir prazo", cardID, func() bool { return s.ops.SetDueDate(cardID, iso) })
}

// SetTitle applies a title edit immediately and persists it through the
// per-card debouncer so rapid keystrokes coalesce into one write.
func (s *Session) SetTitle(cardID, title string) bool {
	s.mu.Lock()
	ok := s.ops.SetTitle(cardID, title)
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.deb.Schedule(cardID, func() { s.persistCard("salvar título", cardID) })
	s.notify()
	return true
}

// SetDetails applies a details edit immediately, persisting debounced.
func (s *Session) SetDetails(cardID, details string) bool {
	s.mu.Lock()
	ok := s.ops.SetDetails(cardID, details)
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.deb.Schedule(cardID, func() { s.persistCard("salvar detalhes", cardID) })
	s.notify()
	return true
}

// AddTask appends a checklist item, returning its id.
func (s *Session) AddTask(cardID, text string) string {
	s.mu.Lock()
	id, ok := s.ops.AddTask(cardID, text)
	if !ok {
		s.mu.Unlock()
		return ""
	}
	b := s.batchLocked("atualizar checklist", cardID)
	s.mu.Unlock()
	s.enqueue(b)
	s.notify()
	return id
}

// ToggleTask flips a checklist item.
func (s *Session) ToggleTask(cardID, taskID string) bool {
	return s.apply("atualizar checklist", cardID, func() bool { return s.ops.ToggleTask(cardID, taskID) })
}

// RemoveTask deletes a checklist item.
func (s *Session) RemoveTask(cardID, taskID string) bool {
	return s.apply("atualizar checklist", cardID, func() bool { return s.ops.RemoveTask(cardID, taskID) })
}

// Close flushes pending debounced writes, drains the persist queue and stops
// the worker. Called on sign-out.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.deb.Flush()
		s.qmu.Lock()
		s.closed = true
		close(s.queue)
		s.qmu.Unlock()
		s.wg.Wait()
	})
}

func (s *Session) apply(action, cardID string, op func() bool) bool {
	s.mu.Lock()
	if !op() {
		s.mu.Unlock()
		return false
	}
	b := s.batchLocked(action, cardID)
	s.mu.Unlock()
	s.enqueue(b)
	s.notify()
	return true
}

// persistCard is the debounced tail of a free-text edit: it writes whatever
// the card looks like now, so only the latest value ever reaches the store.
func (s *Session) persistCard(action, cardID string) {
	s.mu.Lock()
	if _, ok := s.board.Cards[cardID]; !ok {
		// Deleted while the write was pending.
		s.mu.Unlock()
		return
	}
	b := s.batchLocked(action, cardID)
	s.mu.Unlock()
	s.enqueue(b)
}

// batchLocked turns the mutation just applied into persistence jobs. Blob
// stores get the whole board; record stores get granular jobs computed by
// diffing card placements, with a full content patch for the primary card.
func (s *Session) batchLocked(action, primary string) batch {
	if s.cfg.Store.Granularity() == storage.GranularityBoard {
		return batch{action: action, jobs: []job{{kind: jobSaveBoard, board: s.board.Clone()}}}
	}

	cur := placements(s.board)
	var jobs []job
	for id := range s.known {
		if _, ok := cur[id]; !ok {
			jobs = append(jobs, job{kind: jobDelete, id: id})
		}
	}
	for id, pl := range cur {
		old, existed := s.known[id]
		switch {
		case !existed:
			jobs = append(jobs, job{
				kind:     jobCreate,
				id:       id,
				card:     s.board.Cards[id].Clone(),
				col:      pl.col,
				position: pl.position,
				archived: pl.archived,
			})
		case id == primary:
			jobs = append(jobs, job{kind: jobUpdate, id: id, patch: s.contentPatchLocked(id, pl)})
		case old != pl:
			jobs = append(jobs, job{kind: jobUpdate, id: id, patch: placementPatch(pl)})
		}
	}
	s.known = cur
	return batch{action: action, jobs: jobs}
}

func (s *Session) contentPatchLocked(cardID string, pl placement) storage.RecordPatch {
	c := s.board.Cards[cardID]
	p := placementPatch(pl)
	p.Title = ptr(c.Title)
	p.Details = ptr(c.Details)
	due := ""
	if c.DueTs != nil {
		due = domain.FormatISODate(*c.DueTs)
	}
	p.DueDate = ptr(due)
	p.Checklist = append([]domain.ChecklistItem{}, c.Tasks...)
	p.Notes = append([]domain.TimelineEntry{}, c.Timeline...)
	return p
}

func placementPatch(pl placement) storage.RecordPatch {
	col := pl.col
	pos := pl.position
	arch := pl.archived
	return storage.RecordPatch{Col: &col, Position: &pos, Archived: &arch}
}

func placements(b *domain.Board) map[string]placement {
	out := make(map[string]placement, len(b.Cards))
	for _, col := range domain.Columns {
		for pos, id := range b.Columns[col.ID] {
			out[id] = placement{col: col.ID, position: pos}
		}
	}
	for pos, id := range b.Archived {
		out[id] = placement{position: pos, archived: true}
	}
	return out
}

func (s *Session) run() {
	defer s.wg.Done()
	for b := range s.queue {
		s.runBatch(b)
	}
}

func (s *Session) runBatch(b batch) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	for _, j := range b.jobs {
		var err error
		switch j.kind {
		case jobSaveBoard:
			err = s.cfg.Store.SaveBoard(ctx, s.cfg.OwnerID, j.board)
		case jobCreate:
			err = s.cfg.Store.CreateRecord(ctx, s.cfg.OwnerID, j.card, j.col, j.position, j.archived)
		case jobUpdate:
			err = s.cfg.Store.UpdateRecord(ctx, s.cfg.OwnerID, j.id, j.patch)
		case jobDelete:
			err = s.cfg.Store.DeleteRecord(ctx, s.cfg.OwnerID, j.id)
		}
		if err != nil {
			s.fail(b.action, err)
			return
		}
	}
}

// enqueue hands a batch to the worker. The send blocks when the queue is
// full, so the store always receives batches in the order they were issued;
// after Close the remaining writes run inline.
func (s *Session) enqueue(b batch) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if s.closed {
		s.runBatch(b)
		return
	}
	s.queue <- b
}

// fail surfaces a persistence failure. The in-memory board keeps the
// optimistic mutation; the user retries by mutating again.
func (s *Session) fail(action string, err error) {
	s.logue.WithError(err).WithFields(log.Fields{
		"owner":  s.cfg.OwnerID,
		"action": action,
	}).Error("persist failed; keeping in-memory change")
	if s.cfg.OnPersistFailure != nil {
		s.cfg.OnPersistFailure(action, err)
	}
}

func (s *Session) notify() {
	if s.cfg.Notify != nil {
		s.cfg.Notify()
	}
}

func ptr[T any](v T) *T { return &v }
