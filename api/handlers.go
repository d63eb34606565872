package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/session"
)

const maxBodyBytes = 64 << 10

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, boards BoardService, auth Authenticator, hub *Hub, logger *log.Logger) {
	e.GET("/healthz", healthz())
	e.GET("/api/board", getBoard(boards, auth, logger))
	e.GET("/api/board/stream", streamBoard(boards, auth, hub, logger))
	e.GET("/api/cards/:id/timeline", getTimeline(boards, auth))

	e.POST("/api/cards", createCard(boards, auth))
	e.POST("/api/cards/:id/duplicate", duplicateCard(boards, auth))
	e.POST("/api/cards/:id/move", moveCard(boards, auth))
	e.POST("/api/cards/:id/drop", dropCard(boards, auth))
	e.POST("/api/cards/:id/archive", archiveCard(boards, auth))
	e.POST("/api/cards/:id/restore", restoreCard(boards, auth))
	e.DELETE("/api/cards/:id", deleteCard(boards, auth))

	e.POST("/api/cards/:id/notes", addNote(boards, auth))
	e.PUT("/api/cards/:id/due", setDueDate(boards, auth))
	e.PUT("/api/cards/:id/title", setTitle(boards, auth))
	e.PUT("/api/cards/:id/details", setDetails(boards, auth))

	e.POST("/api/cards/:id/tasks", addTask(boards, auth))
	e.POST("/api/cards/:id/tasks/:taskId/toggle", toggleTask(boards, auth))
	e.DELETE("/api/cards/:id/tasks/:taskId", removeTask(boards, auth))

	e.DELETE("/api/session", signOut(boards, auth))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// openSession authenticates the request and returns the owner's session. On
// failure the response has already been written and the session is nil.
func openSession(c echo.Context, boards BoardService, auth Authenticator) (*session.Session, error) {
	userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if authErr != nil {
		return nil, c.String(http.StatusUnauthorized, authErr.Error())
	}
	s, getErr := boards.Get(c.Request().Context(), userID)
	if getErr != nil {
		if errors.Is(getErr, session.ErrNotSignedIn) {
			return nil, c.String(http.StatusUnauthorized, getErr.Error())
		}
		c.Logger().Error(getErr)
		return nil, c.String(http.StatusInternalServerError, getErr.Error())
	}
	return s, nil
}

// decodeBody fills v from the request body. An absent body leaves v zeroed
// so optional-body routes fall back to their defaults.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodyBytes)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func respondBoard(c echo.Context, s *session.Session) error {
	return c.JSON(http.StatusOK, newBoardResponse(s.Snapshot(), time.Now().UnixMilli()))
}

func getBoard(boards BoardService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newBoardRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		loadStart := time.Now()
		s, getErr := boards.Get(c.Request().Context(), userID)
		metrics.ObserveLoad(time.Since(loadStart))
		if getErr != nil {
			if errors.Is(getErr, session.ErrNotSignedIn) {
				metrics.SetErrorStage("auth")
				err = c.String(http.StatusUnauthorized, getErr.Error())
				return err
			}
			metrics.SetErrorStage("session")
			c.Logger().Error(getErr)
			err = c.String(http.StatusInternalServerError, getErr.Error())
			return err
		}

		snap := s.Snapshot()
		metrics.SetCardsReturned(len(snap.Cards))
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, newBoardResponse(snap, time.Now().UnixMilli()))
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getTimeline(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		card, ok := s.Snapshot().Cards[c.Param("id")]
		if !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		return c.JSON(http.StatusOK, newTimelineResponse(card, c.QueryParam("tab")))
	}
}

type createCardRequest struct {
	Title string `json:"title"`
	Col   string `json:"col"`
	Due   string `json:"due"`
}

func createCard(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		var req createCardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col := domain.ColumnID(req.Col)
		if req.Col == "" {
			col = domain.ColTodo
		} else if !domain.KnownColumn(col) {
			return c.String(http.StatusBadRequest, "unknown column")
		}
		if req.Due != "" {
			if _, parseErr := domain.ParseISODate(req.Due); parseErr != nil {
				return c.String(http.StatusBadRequest, "invalid due date")
			}
		}
		id := s.CreateCard(req.Title, col, req.Due)
		if id == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}
		card := s.Snapshot().Cards[id]
		return c.JSON(http.StatusCreated, newCardView(card, time.Now().UnixMilli()))
	}
}

func duplicateCard(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		id := s.DuplicateCard(c.Param("id"))
		if id == "" {
			return c.String(http.StatusNotFound, "card not found")
		}
		card := s.Snapshot().Cards[id]
		return c.JSON(http.StatusCreated, newCardView(card, time.Now().UnixMilli()))
	}
}

type moveCardRequest struct {
	Col string `json:"col"`
}

func moveCard(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		var req moveCardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col := domain.ColumnID(req.Col)
		if !domain.KnownColumn(col) {
			return c.String(http.StatusBadRequest, "unknown column")
		}
		id := c.Param("id")
		s.MoveCard(id, col)
		if _, ok := s.Snapshot().Cards[id]; !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		return respondBoard(c, s)
	}
}

type dropCardRequest struct {
	Col    string `json:"col"`
	Before string `json:"before"`
}

func dropCard(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		var req dropCardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col := domain.ColumnID(req.Col)
		if !domain.KnownColumn(col) {
			return c.String(http.StatusBadRequest, "unknown column")
		}
		id := c.Param("id")
		s.DropCard(id, col, req.Before)
		if _, ok := s.Snapshot().Cards[id]; !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		return respondBoard(c, s)
	}
}

func archiveCard(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		id := c.Param("id")
		s.ArchiveCard(id)
		if _, ok := s.Snapshot().Cards[id]; !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		return respondBoard(c, s)
	}
}

type restoreCardRequest struct {
	Col string `json:"col"`
}

func restoreCard(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		var req restoreCardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col := domain.ColTodo
		if req.Col != "" {
			col = domain.ColumnID(req.Col)
			if !domain.KnownColumn(col) {
				return c.String(http.StatusBadRequest, "unknown column")
			}
		}
		id := c.Param("id")
		s.RestoreCard(id, col)
		if _, ok := s.Snapshot().Cards[id]; !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		return respondBoard(c, s)
	}
}

func deleteCard(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		if !s.DeleteCard(c.Param("id")) {
			return c.String(http.StatusNotFound, "card not found")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type noteRequest struct {
	Text string `json:"text"`
}

func addNote(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		var req noteRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		id := c.Param("id")
		if _, ok := s.Snapshot().Cards[id]; !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		if !s.AddNote(id, req.Text) {
			return c.String(http.StatusBadRequest, "note text is required")
		}
		card := s.Snapshot().Cards[id]
		return c.JSON(http.StatusCreated, newTimelineResponse(card, "all"))
	}
}

type dueDateRequest struct {
	Date string `json:"date"`
}

func setDueDate(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		var req dueDateRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Date != "" {
			if _, parseErr := domain.ParseISODate(req.Date); parseErr != nil {
				return c.String(http.StatusBadRequest, "invalid due date")
			}
		}
		id := c.Param("id")
		if _, ok := s.Snapshot().Cards[id]; !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		s.SetDueDate(id, req.Date)
		card := s.Snapshot().Cards[id]
		return c.JSON(http.StatusOK, newCardView(card, time.Now().UnixMilli()))
	}
}

type titleRequest struct {
	Title string `json:"title"`
}

func setTitle(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		var req titleRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		id := c.Param("id")
		if _, ok := s.Snapshot().Cards[id]; !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		// Re-submitting the current title is a no-op, not an error.
		if !s.SetTitle(id, req.Title) && strings.TrimSpace(req.Title) == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}
		card := s.Snapshot().Cards[id]
		return c.JSON(http.StatusOK, newCardView(card, time.Now().UnixMilli()))
	}
}

type detailsRequest struct {
	Details string `json:"details"`
}

func setDetails(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		var req detailsRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		id := c.Param("id")
		if _, ok := s.Snapshot().Cards[id]; !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		s.SetDetails(id, req.Details)
		card := s.Snapshot().Cards[id]
		return c.JSON(http.StatusOK, newCardView(card, time.Now().UnixMilli()))
	}
}

type taskRequest struct {
	Text string `json:"text"`
}

func addTask(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		id := c.Param("id")
		if _, ok := s.Snapshot().Cards[id]; !ok {
			return c.String(http.StatusNotFound, "card not found")
		}
		if s.AddTask(id, req.Text) == "" {
			return c.String(http.StatusBadRequest, "task text is required")
		}
		card := s.Snapshot().Cards[id]
		return c.JSON(http.StatusCreated, newCardView(card, time.Now().UnixMilli()))
	}
}

func toggleTask(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		id := c.Param("id")
		if !s.ToggleTask(id, c.Param("taskId")) {
			return c.String(http.StatusNotFound, "task not found")
		}
		card := s.Snapshot().Cards[id]
		return c.JSON(http.StatusOK, newCardView(card, time.Now().UnixMilli()))
	}
}

func removeTask(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := openSession(c, boards, auth)
		if s == nil {
			return err
		}
		id := c.Param("id")
		if !s.RemoveTask(id, c.Param("taskId")) {
			return c.String(http.StatusNotFound, "task not found")
		}
		card := s.Snapshot().Cards[id]
		return c.JSON(http.StatusOK, newCardView(card, time.Now().UnixMilli()))
	}
}

// signOut flushes pending writes and drops the owner's session.
func signOut(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if authErr != nil {
			return c.String(http.StatusUnauthorized, authErr.Error())
		}
		boards.SignOut(userID)
		return c.NoContent(http.StatusNoContent)
	}
}
