package appointment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// CreateProvider adds an active provider, charging one unit of the provider quota.
func (s *Service) CreateProvider(ctx context.Context, tenantID uuid.UUID, p ProviderParams) (*models.Provider, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	now := s.now()
	tenant, err := s.Subscriptions.ResolveActive(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	reservation, err := s.Quota.Reserve(ctx, tenant, models.ResourceProvider, now)
	if err != nil {
		return nil, err
	}

	provider := &models.Provider{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Name:         p.Name,
		Specialty:    p.Specialty,
		Active:       true,
		BaselineRate: p.BaselineRate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.CreateProvider(ctx, provider); err != nil {
		if rerr := reservation.Release(context.WithoutCancel(ctx)); rerr != nil {
			slog.Error("failed to release provider quota", "tenant_id", tenantID, "error", rerr)
		}
		return nil, fmt.Errorf("%w: creating provider: %w", ErrInternal, err)
	}

	slog.Info("provider created", "tenant_id", tenantID, "provider_id", provider.ID, "active_providers", reservation.Count)
	return provider, nil
}

// DeactivateProvider marks a provider inactive and returns its unit of provider quota.
// Existing appointments with the provider are left as they are.
func (s *Service) DeactivateProvider(ctx context.Context, tenantID, id uuid.UUID) (*models.Provider, error) {
	now := s.now()
	if _, err := s.Subscriptions.ResolveActive(ctx, tenantID, now); err != nil {
		return nil, err
	}

	provider, err := s.Store.DeactivateProvider(ctx, tenantID, id, now)
	if err != nil {
		return nil, fmt.Errorf("deactivating provider: %w", err)
	}

	if err := s.Quota.Release(context.WithoutCancel(ctx), tenantID, models.ResourceProvider, now); err != nil {
		// The counter stays one high until corrected.
		slog.Error("failed to release provider quota", "tenant_id", tenantID, "provider_id", id, "error", err)
	}
	slog.Info("provider deactivated", "tenant_id", tenantID, "provider_id", id)
	return provider, nil
}

// CreatePatient adds a patient to the tenant's practice.
func (s *Service) CreatePatient(ctx context.Context, tenantID uuid.UUID, p PatientParams) (*models.Patient, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	now := s.now()
	if _, err := s.Subscriptions.ResolveActive(ctx, tenantID, now); err != nil {
		return nil, err
	}

	patient := &models.Patient{
		ID:               uuid.New(),
		TenantID:         tenantID,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Phone:            p.Phone,
		Email:            p.Email,
		PreferredContact: p.PreferredContact,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Store.CreatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("creating patient: %w", err)
	}
	return patient, nil
}
