package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/api/response"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// KeyManager issues, lists and revokes API keys.
type KeyManager interface {
	KeyIssuer
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	Revoke(ctx context.Context, tenantID, id uuid.UUID) error
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
func NewCreateKeyHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}

		var req struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if !decode(w, r, &req) {
			return
		}

		raw, key, err := keys.Issue(r.Context(), tid, req.Name, req.Scopes, time.Now().UTC())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, map[string]any{
			"api_key": raw,
			"key":     key,
		})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		list, err := keys.List(r.Context(), tid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []*models.APIKey{}
		}
		response.List(w, list, len(list))
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "keyID")
		if !ok {
			return
		}
		if err := keys.Revoke(r.Context(), tid, id); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
