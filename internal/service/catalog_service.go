package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"helpr/internal/audit"
	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService serves the service catalog from an in-memory snapshot of the
// active services, reloaded after every admin write.
type CatalogService struct {
	repo    domain.ServiceRepository
	auditor Auditor
	logger  *zerolog.Logger

	mu     sync.RWMutex
	active []models.Service
	byID   map[int64]models.Service
}

func NewCatalogService(repo domain.ServiceRepository, auditor Auditor, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{repo: repo, auditor: auditor, logger: logger, byID: make(map[int64]models.Service)}
}

// Reload refreshes the active snapshot from the store.
func (s *CatalogService) Reload(ctx context.Context) error {
	list, err := s.repo.ListServices(ctx, "", true)
	if err != nil {
		return fmt.Errorf("failed to load services: %w", err)
	}
	active := make([]models.Service, 0, len(list))
	byID := make(map[int64]models.Service, len(list))
	for _, svc := range list {
		active = append(active, *svc)
		byID[svc.ID] = *svc
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Category != active[j].Category {
			return active[i].Category < active[j].Category
		}
		return active[i].Name < active[j].Name
	})

	s.mu.Lock()
	s.active = active
	s.byID = byID
	s.mu.Unlock()
	return nil
}

// ListActive returns active services ordered by category and name.
func (s *CatalogService) ListActive(_ context.Context, category models.ServiceCategory) []models.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Service, 0, len(s.active))
	for _, svc := range s.active {
		if category == "" || svc.Category == category {
			out = append(out, svc)
		}
	}
	return out
}

func (s *CatalogService) GetActive(_ context.Context, id int64) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.byID[id]
	if !ok {
		return nil, domain.NotFound("Service")
	}
	return &svc, nil
}

type ServiceInput struct {
	Name        *string
	Description *string
	Category    *models.ServiceCategory
	Icon        *string
	IsActive    *bool
}

func validateService(svc *models.Service) error {
	var fields []domain.FieldError
	if n := utf8.RuneCountInString(svc.Name); n == 0 || n > models.MaxNameLength {
		fields = append(fields, domain.FieldError{Field: "name", Message: fmt.Sprintf("name must be 1-%d characters", models.MaxNameLength)})
	}
	if utf8.RuneCountInString(svc.Description) > models.MaxDescriptionLength {
		fields = append(fields, domain.FieldError{Field: "description", Message: "description is too long"})
	}
	if fe := validCategories([]models.ServiceCategory{svc.Category}); fe != nil {
		fields = append(fields, domain.FieldError{Field: "category", Message: fe.Message})
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func (s *CatalogService) Create(ctx context.Context, actor domain.Actor, in ServiceInput, prov models.Provenance) (*models.Service, error) {
	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin access required")
	}
	svc := &models.Service{IsActive: true}
	applyServiceInput(svc, in)
	if err := validateService(svc); err != nil {
		return nil, err
	}
	createdBy := actor.ID
	svc.CreatedBy = &createdBy

	// the target id is filled in by the store once the row exists
	record, err := s.auditor.Prepare(audit.Entry{
		AdminID:    actor.ID,
		ActionType: models.ActionServiceCreate,
		TargetType: models.TargetService,
		New:        map[string]any{"name": svc.Name, "category": string(svc.Category)},
		Provenance: prov,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateService(ctx, svc, record); err != nil {
		return nil, wrap(storeErr(err, "Service"), "create service")
	}
	s.auditor.Committed(record)
	s.reload(ctx)
	return svc, nil
}

// Update edits a service. Turning IsActive off is recorded as a deactivation.
func (s *CatalogService) Update(ctx context.Context, actor domain.Actor, id int64, in ServiceInput, prov models.Provenance) (*models.Service, error) {
	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin access required")
	}
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, wrap(storeErr(err, "Service"), "load service")
	}
	previous := svc.Snapshot()
	wasActive := svc.IsActive

	applyServiceInput(svc, in)
	if err := validateService(svc); err != nil {
		return nil, err
	}
	action := models.ActionServiceUpdate
	if wasActive && !svc.IsActive {
		action = models.ActionServiceDeactivate
	}
	record, err := s.auditor.Prepare(audit.Entry{
		AdminID:    actor.ID,
		ActionType: action,
		TargetType: models.TargetService,
		TargetID:   svc.ID,
		Previous:   previous,
		New:        svc.Snapshot(),
		Provenance: prov,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateService(ctx, svc, record); err != nil {
		return nil, wrap(storeErr(err, "Service"), "update service")
	}
	s.auditor.Committed(record)
	s.reload(ctx)
	return svc, nil
}

func (s *CatalogService) reload(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to refresh service catalog")
	}
}

func applyServiceInput(svc *models.Service, in ServiceInput) {
	if in.Name != nil {
		svc.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		svc.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		svc.Category = *in.Category
	}
	if in.Icon != nil {
		svc.Icon = strings.TrimSpace(*in.Icon)
	}
	if in.IsActive != nil {
		svc.IsActive = *in.IsActive
	}
}
