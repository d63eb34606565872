package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Local persists each owner's board as a single JSON blob on disk. Saves
// rewrite the whole file; record-level calls are accepted no-ops because the
// session follows up with a whole-board save.
type Local struct {
	dir string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Granularity() Granularity { return GranularityBoard }

func (l *Local) path(ownerID string) string {
	if ownerID == "" {
		ownerID = "local"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, ownerID)
	return filepath.Join(l.dir, safe+".json")
}

// LoadBoard reads the owner's blob. A missing file means no board yet; a
// corrupt blob is treated the same way rather than crashing the session.
func (l *Local) LoadBoard(ctx context.Context, ownerID string) (*domain.Board, error) {
	data, err := os.ReadFile(l.path(ownerID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var b domain.Board
	if err := json.Unmarshal(data, &b); err != nil {
		log.WithError(err).WithField("owner", ownerID).Warn("discarding corrupt board blob")
		return nil, nil
	}
	return &b, nil
}

// SaveBoard writes the serialized board atomically: a temp file in the same
// directory, then a rename over the old blob.
func (l *Local) SaveBoard(ctx context.Context, ownerID string, b *domain.Board) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(l.dir, ".board-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), l.path(ownerID))
}

func (l *Local) CreateRecord(ctx context.Context, ownerID string, card *domain.Card, col domain.ColumnID, position int, archived bool) error {
	return nil
}

func (l *Local) UpdateRecord(ctx context.Context, ownerID, cardID string, patch RecordPatch) error {
	return nil
}

func (l *Local) DeleteRecord(ctx context.Context, ownerID, cardID string) error {
	return nil
}
