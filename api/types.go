package api

import (
	"context"

	"kanban-api/session"
)

// BoardService hands out the per-owner board session behind every handler.
type BoardService interface {
	Get(ctx context.Context, ownerID string) (*session.Session, error)
	SignOut(ownerID string)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Anonymous authorizes every request under a single shared identity. Used
// when the server runs without an identity provider, typically with the
// local file store.
type Anonymous struct {
	Owner string
}

func (a Anonymous) UserIDFromAuthHeader(string) (string, error) {
	if a.Owner == "" {
		return "local", nil
	}
	return a.Owner, nil
}
