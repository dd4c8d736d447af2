package company

import (
	"context"
	"time"

	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
)

// View is the company representation returned to admins
type View struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	KioskEnabled bool      `json:"kiosk_enabled"`
	Settings     Settings  `json:"settings"`
	CreatedAt    time.Time `json:"created_at"`
}

// Service implements company administration
type Service struct {
	repo      *Repository
	auditor   *audit.Recorder
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewService creates a new company service
func NewService(repo *Repository, auditor *audit.Recorder, pub messaging.EventPublisher, log *logger.Logger) *Service {
	return &Service{repo: repo, auditor: auditor, publisher: pub, logger: log}
}

// Get returns the caller's company with parsed settings
func (s *Service) Get(ctx context.Context) (*View, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	settings, err := ParseStored(c.Settings)
	if err != nil {
		return nil, err
	}

	return &View{
		ID:           c.ID,
		Name:         c.Name,
		Slug:         c.Slug,
		KioskEnabled: c.KioskEnabled,
		Settings:     settings,
		CreatedAt:    c.CreatedAt,
	}, nil
}

// Rename changes the company name
func (s *Service) Rename(ctx context.Context, name string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}
	if name == "" {
		return errors.Validation(map[string]string{"name": "this field is required"})
	}
	return s.repo.UpdateName(ctx, companyID, name)
}

// UpdateSettings applies a settings update on top of the stored bag.
// Unknown keys are rejected; the full updated bag is returned.
func (s *Service) UpdateSettings(ctx context.Context, raw []byte) (*Settings, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	current, err := ParseStored(c.Settings)
	if err != nil {
		return nil, err
	}

	updated, err := ApplyUpdate(current, raw)
	if err != nil {
		return nil, err
	}

	doc, err := updated.Marshal()
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSettings(ctx, companyID, doc); err != nil {
		return nil, err
	}

	actor := httputil.GetUserID(ctx)
	if err := s.auditor.Record(ctx, &actor, audit.ActionSettingsUpdate, "company", companyID, nil); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write settings audit row")
	}
	if err := s.publisher.Publish(ctx, messaging.EventCompanySettingsUpdated, messaging.CompanySettingsUpdatedEvent{
		CompanyID: companyID,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish settings event")
	}

	s.logger.Info().Str("company_id", companyID).Msg("company settings updated")
	return &updated, nil
}

// SetKioskEnabled toggles the kiosk flag
func (s *Service) SetKioskEnabled(ctx context.Context, enabled bool) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}
	return s.repo.SetKioskEnabled(ctx, companyID, enabled)
}

// SettingsFor loads and parses the settings of the caller's company.
// The time clock, schedule and payroll services all start here.
func (s *Service) SettingsFor(ctx context.Context) (Settings, *time.Location, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return Settings{}, nil, err
	}

	c, err := s.repo.GetByID(ctx, companyID)
	if err != nil {
		return Settings{}, nil, err
	}

	settings, err := ParseStored(c.Settings)
	if err != nil {
		return Settings{}, nil, err
	}

	loc, err := timeutil.LoadLocation(settings.Timezone)
	if err != nil {
		return Settings{}, nil, err
	}
	return settings, loc, nil
}

// ResolveSlug looks up a company by its public slug. Only companies
// with the kiosk enabled resolve; everything else is a uniform 404 so
// slugs cannot be probed.
func (s *Service) ResolveSlug(ctx context.Context, slug string) (*Company, Settings, error) {
	c, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, Settings{}, err
	}
	if !c.KioskEnabled {
		return nil, Settings{}, errors.NotFound("company")
	}

	settings, err := ParseStored(c.Settings)
	if err != nil {
		return nil, Settings{}, err
	}
	return c, settings, nil
}
