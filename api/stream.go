package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/session"
)

const streamHeartbeat = 25 * time.Second

// Hub fans board-change notifications out to stream subscribers, keyed by
// owner. Sessions call Notify after every applied mutation.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Notify wakes every subscriber of the owner. Sends never block: a subscriber
// that already has a pending wakeup will re-read the latest snapshot anyway.
func (h *Hub) Notify(ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ownerID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) subscribe(ownerID string) (chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[chan struct{}]struct{})
	}
	h.subs[ownerID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[ownerID], ch)
		if len(h.subs[ownerID]) == 0 {
			delete(h.subs, ownerID)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// streamBoard serves the board over SSE: a full snapshot on connect, then a
// fresh snapshot after every mutation, with heartbeats to keep proxies from
// closing the stream.
func streamBoard(boards BoardService, auth Authenticator, hub *Hub, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}

		resp := c.Response()
		resp.Header().Set(echo.HeaderContentType, "text/event-stream")
		resp.Header().Set("Cache-Control", "no-cache")
		resp.Header().Set("Connection", "keep-alive")
		resp.WriteHeader(http.StatusOK)

		wake, cancel := hub.subscribe(s.OwnerID())
		defer cancel()

		if err := writeBoardEvent(c, s); err != nil {
			return nil
		}

		ticker := time.NewTicker(streamHeartbeat)
		defer ticker.Stop()
		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
				if err := writeBoardEvent(c, s); err != nil {
					logger.WithError(err).Debug("board stream closed")
					return nil
				}
			case <-ticker.C:
				if _, err := fmt.Fprint(resp, ": ping\n\n"); err != nil {
					return nil
				}
				resp.Flush()
			}
		}
	}
}

func writeBoardEvent(c echo.Context, s *session.Session) error {
	payload, err := sonic.ConfigStd.Marshal(newBoardResponse(s.Snapshot(), time.Now().UnixMilli()))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "event: board\ndata: %s\n\n", payload); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
