// Package apikey issues and revokes the bearer keys practices use to call the API.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// PrefixLen is how much of a raw key is stored in clear for lookup.
const PrefixLen = 8

const rawPrefix = "cg_"

// Scopes a key can carry.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// AllScopes is granted to the key created at registration.
var AllScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

var ErrInvalidScope = errors.New("invalid api key scope")

// Service creates and manages API keys. Raw keys are returned once and never stored.
type Service struct {
	keys store.APIKeyStore
	cost int
}

// NewService creates a new Service hashing with bcrypt at the given cost.
// A cost of 0 uses bcrypt.DefaultCost.
func NewService(keys store.APIKeyStore, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{keys: keys, cost: cost}
}

// Issue creates a key for the tenant and returns the raw key alongside its record.
func (s *Service) Issue(ctx context.Context, tenantID uuid.UUID, name string, scopes []string, now time.Time) (string, *models.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeRead, ScopeWrite}
	}
	for _, sc := range scopes {
		if sc != ScopeRead && sc != ScopeWrite && sc != ScopeAdmin {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidScope, sc)
		}
	}

	raw, err := generate()
	if err != nil {
		return "", nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), s.cost)
	if err != nil {
		return "", nil, fmt.Errorf("hashing api key: %w", err)
	}

	now = now.UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:PrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.keys.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("storing api key: %w", err)
	}
	slog.Info("api key issued", "tenant_id", tenantID, "key_id", key.ID, "key_prefix", key.KeyPrefix)
	return raw, key, nil
}

// List returns the tenant's live keys.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	keys, err := s.keys.ListAPIKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	return keys, nil
}

// Revoke soft-deletes a key. Requests using it fail authentication from then on.
func (s *Service) Revoke(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.keys.RevokeAPIKey(ctx, id, tenantID); err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	slog.Info("api key revoked", "tenant_id", tenantID, "key_id", id)
	return nil
}

func generate() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return rawPrefix + hex.EncodeToString(b), nil
}
