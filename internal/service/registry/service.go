package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/millflow/millflow/internal/audit"
	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
	millinputrepo "github.com/millflow/millflow/internal/repository/millinput"
	orderrepo "github.com/millflow/millflow/internal/repository/order"
	repo "github.com/millflow/millflow/internal/repository/registry"
	"github.com/millflow/millflow/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/millflow/millflow/service/registry")

// Service manages the reference registry: parties, mills, qualities and
// processes. Names are unique per kind. Deleting a party with orders is
// refused; deleting a mill cascades its issuance ledger rows.
type Service struct {
	repo       *repo.Repository
	orders     *orderrepo.Repository
	millInputs *millinputrepo.Repository
	logger     *zap.Logger
	recorder   *audit.Recorder
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Orders     *orderrepo.Repository
	MillInputs *millinputrepo.Repository
	Logger     *zap.Logger
	Recorder   *audit.Recorder
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:       p.Repository,
		orders:     p.Orders,
		millInputs: p.MillInputs,
		logger:     p.Logger,
		recorder:   p.Recorder,
	}
}

// ContactInput carries party and mill fields.
type ContactInput struct {
	Name          string
	ContactPerson string
	Phone         string
	Address       string
}

// QualityInput carries quality fields.
type QualityInput struct {
	Name        string
	Description string
}

// ProcessInput carries process fields.
type ProcessInput struct {
	Name string
}

// CreateParty adds a new customer.
func (s *Service) CreateParty(ctx context.Context, in ContactInput, caller audit.Caller) (*entity.Party, error) {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.CreateParty")
	defer span.End()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	party := &entity.Party{
		Name:          name,
		ContactPerson: in.ContactPerson,
		Phone:         in.Phone,
		Address:       in.Address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateParty(ctx, party); err != nil {
		return nil, wrapNameConflict(span, err, "party", name)
	}
	s.recorder.Create(audit.ResourceParty, idStr(party.ID), map[string]any{"name": party.Name}, caller)
	return party, nil
}

// GetParty fetches a party by id.
func (s *Service) GetParty(ctx context.Context, id int64) (*entity.Party, error) {
	party, err := s.repo.GetParty(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, repo.ErrPartyNotFound, "party")
	}
	return party, nil
}

// ListParties returns a page of parties.
func (s *Service) ListParties(ctx context.Context, page, limit int) ([]*entity.Party, int, error) {
	parties, count, err := s.repo.ListParties(ctx, page, limit)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list parties", errorbank.WithCause(err))
	}
	return parties, count, nil
}

// UpdateParty replaces a party's fields.
func (s *Service) UpdateParty(ctx context.Context, id int64, in ContactInput, caller audit.Caller) (*entity.Party, error) {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.UpdateParty", trace.WithAttributes(attribute.Int64("party.id", id)))
	defer span.End()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	existing, err := s.GetParty(ctx, id)
	if err != nil {
		return nil, err
	}

	party := &entity.Party{
		ID:            id,
		Name:          name,
		ContactPerson: in.ContactPerson,
		Phone:         in.Phone,
		Address:       in.Address,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := s.repo.UpdateParty(ctx, party); err != nil {
		if errors.Is(err, repo.ErrPartyNotFound) {
			return nil, errorbank.NotFound("party not found")
		}
		return nil, wrapNameConflict(span, err, "party", name)
	}
	s.recorder.Update(audit.ResourceParty, idStr(id),
		map[string]any{"name": existing.Name},
		map[string]any{"name": party.Name},
		caller)
	return s.GetParty(ctx, id)
}

// DeleteParty removes a party, refusing while any order still references it.
func (s *Service) DeleteParty(ctx context.Context, id int64, caller audit.Caller) error {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.DeleteParty", trace.WithAttributes(attribute.Int64("party.id", id)))
	defer span.End()

	existing, err := s.GetParty(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.orders.CountByParty(ctx, id)
	if err != nil {
		return errorbank.Internal("failed to count party orders", errorbank.WithCause(err))
	}
	if count > 0 {
		return errorbank.Conflict(fmt.Sprintf("party has %d order(s) and cannot be deleted", count))
	}

	if err := s.repo.DeleteParty(ctx, id); err != nil {
		if errors.Is(err, repo.ErrPartyNotFound) {
			return errorbank.NotFound("party not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete party", errorbank.WithCause(err))
	}
	s.recorder.Delete(audit.ResourceParty, idStr(id), map[string]any{"name": existing.Name}, caller)
	return nil
}

// CreateMill adds a new mill.
func (s *Service) CreateMill(ctx context.Context, in ContactInput, caller audit.Caller) (*entity.Mill, error) {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.CreateMill")
	defer span.End()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	mill := &entity.Mill{
		Name:          name,
		ContactPerson: in.ContactPerson,
		Phone:         in.Phone,
		Address:       in.Address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateMill(ctx, mill); err != nil {
		return nil, wrapNameConflict(span, err, "mill", name)
	}
	s.recorder.Create(audit.ResourceMill, idStr(mill.ID), map[string]any{"name": mill.Name}, caller)
	return mill, nil
}

// GetMill fetches a mill by id.
func (s *Service) GetMill(ctx context.Context, id int64) (*entity.Mill, error) {
	mill, err := s.repo.GetMill(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, repo.ErrMillNotFound, "mill")
	}
	return mill, nil
}

// ListMills returns a page of mills.
func (s *Service) ListMills(ctx context.Context, page, limit int) ([]*entity.Mill, int, error) {
	mills, count, err := s.repo.ListMills(ctx, page, limit)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list mills", errorbank.WithCause(err))
	}
	return mills, count, nil
}

// UpdateMill replaces a mill's fields.
func (s *Service) UpdateMill(ctx context.Context, id int64, in ContactInput, caller audit.Caller) (*entity.Mill, error) {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.UpdateMill", trace.WithAttributes(attribute.Int64("mill.id", id)))
	defer span.End()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	existing, err := s.GetMill(ctx, id)
	if err != nil {
		return nil, err
	}

	mill := &entity.Mill{
		ID:            id,
		Name:          name,
		ContactPerson: in.ContactPerson,
		Phone:         in.Phone,
		Address:       in.Address,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := s.repo.UpdateMill(ctx, mill); err != nil {
		if errors.Is(err, repo.ErrMillNotFound) {
			return nil, errorbank.NotFound("mill not found")
		}
		return nil, wrapNameConflict(span, err, "mill", name)
	}
	s.recorder.Update(audit.ResourceMill, idStr(id),
		map[string]any{"name": existing.Name},
		map[string]any{"name": mill.Name},
		caller)
	return s.GetMill(ctx, id)
}

// DeleteMill removes a mill and cascades its issuance ledger rows.
func (s *Service) DeleteMill(ctx context.Context, id int64, caller audit.Caller) error {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.DeleteMill", trace.WithAttributes(attribute.Int64("mill.id", id)))
	defer span.End()

	existing, err := s.GetMill(ctx, id)
	if err != nil {
		return err
	}

	cascaded, err := s.millInputs.DeleteByMill(ctx, id)
	if err != nil {
		return errorbank.Internal("failed to delete mill inputs", errorbank.WithCause(err))
	}

	if err := s.repo.DeleteMill(ctx, id); err != nil {
		if errors.Is(err, repo.ErrMillNotFound) {
			return errorbank.NotFound("mill not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete mill", errorbank.WithCause(err))
	}

	s.recorder.Delete(audit.ResourceMill, idStr(id), map[string]any{
		"name":               existing.Name,
		"cascadedMillInputs": cascaded,
	}, caller)
	return nil
}

// CreateQuality adds a new quality.
func (s *Service) CreateQuality(ctx context.Context, in QualityInput, caller audit.Caller) (*entity.Quality, error) {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.CreateQuality")
	defer span.End()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	quality := &entity.Quality{
		Name:        name,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateQuality(ctx, quality); err != nil {
		return nil, wrapNameConflict(span, err, "quality", name)
	}
	s.recorder.Create(audit.ResourceQuality, idStr(quality.ID), map[string]any{"name": quality.Name}, caller)
	return quality, nil
}

// GetQuality fetches a quality by id.
func (s *Service) GetQuality(ctx context.Context, id int64) (*entity.Quality, error) {
	quality, err := s.repo.GetQuality(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, repo.ErrQualityNotFound, "quality")
	}
	return quality, nil
}

// ListQualities returns a page of qualities.
func (s *Service) ListQualities(ctx context.Context, page, limit int) ([]*entity.Quality, int, error) {
	qualities, count, err := s.repo.ListQualities(ctx, page, limit)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list qualities", errorbank.WithCause(err))
	}
	return qualities, count, nil
}

// UpdateQuality replaces a quality's fields.
func (s *Service) UpdateQuality(ctx context.Context, id int64, in QualityInput, caller audit.Caller) (*entity.Quality, error) {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.UpdateQuality", trace.WithAttributes(attribute.Int64("quality.id", id)))
	defer span.End()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	existing, err := s.GetQuality(ctx, id)
	if err != nil {
		return nil, err
	}

	quality := &entity.Quality{
		ID:          id,
		Name:        name,
		Description: in.Description,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.repo.UpdateQuality(ctx, quality); err != nil {
		if errors.Is(err, repo.ErrQualityNotFound) {
			return nil, errorbank.NotFound("quality not found")
		}
		return nil, wrapNameConflict(span, err, "quality", name)
	}
	s.recorder.Update(audit.ResourceQuality, idStr(id),
		map[string]any{"name": existing.Name},
		map[string]any{"name": quality.Name},
		caller)
	return s.GetQuality(ctx, id)
}

// DeleteQuality removes a quality. Rows referencing it keep their id; the
// reference resolves to nothing afterwards.
func (s *Service) DeleteQuality(ctx context.Context, id int64, caller audit.Caller) error {
	existing, err := s.GetQuality(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteQuality(ctx, id); err != nil {
		if errors.Is(err, repo.ErrQualityNotFound) {
			return errorbank.NotFound("quality not found")
		}
		return errorbank.Internal("failed to delete quality", errorbank.WithCause(err))
	}
	s.recorder.Delete(audit.ResourceQuality, idStr(id), map[string]any{"name": existing.Name}, caller)
	return nil
}

// CreateProcess adds a new process.
func (s *Service) CreateProcess(ctx context.Context, in ProcessInput, caller audit.Caller) (*entity.Process, error) {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.CreateProcess")
	defer span.End()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	process := &entity.Process{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateProcess(ctx, process); err != nil {
		return nil, wrapNameConflict(span, err, "process", name)
	}
	s.recorder.Create(audit.ResourceProcess, idStr(process.ID), map[string]any{"name": process.Name}, caller)
	return process, nil
}

// GetProcess fetches a process by id.
func (s *Service) GetProcess(ctx context.Context, id int64) (*entity.Process, error) {
	process, err := s.repo.GetProcess(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, repo.ErrProcessNotFound, "process")
	}
	return process, nil
}

// ListProcesses returns a page of processes.
func (s *Service) ListProcesses(ctx context.Context, page, limit int) ([]*entity.Process, int, error) {
	processes, count, err := s.repo.ListProcesses(ctx, page, limit)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list processes", errorbank.WithCause(err))
	}
	return processes, count, nil
}

// UpdateProcess replaces a process's name.
func (s *Service) UpdateProcess(ctx context.Context, id int64, in ProcessInput, caller audit.Caller) (*entity.Process, error) {
	ctx, span := serviceTracer.Start(ctx, "RegistryService.UpdateProcess", trace.WithAttributes(attribute.Int64("process.id", id)))
	defer span.End()

	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	existing, err := s.GetProcess(ctx, id)
	if err != nil {
		return nil, err
	}

	process := &entity.Process{
		ID:        id,
		Name:      name,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.UpdateProcess(ctx, process); err != nil {
		if errors.Is(err, repo.ErrProcessNotFound) {
			return nil, errorbank.NotFound("process not found")
		}
		return nil, wrapNameConflict(span, err, "process", name)
	}
	s.recorder.Update(audit.ResourceProcess, idStr(id),
		map[string]any{"name": existing.Name},
		map[string]any{"name": process.Name},
		caller)
	return s.GetProcess(ctx, id)
}

// DeleteProcess removes a process.
func (s *Service) DeleteProcess(ctx context.Context, id int64, caller audit.Caller) error {
	existing, err := s.GetProcess(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProcess(ctx, id); err != nil {
		if errors.Is(err, repo.ErrProcessNotFound) {
			return errorbank.NotFound("process not found")
		}
		return errorbank.Internal("failed to delete process", errorbank.WithCause(err))
	}
	s.recorder.Delete(audit.ResourceProcess, idStr(id), map[string]any{"name": existing.Name}, caller)
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errorbank.BadRequest("name is required")
	}
	return name, nil
}

func mapNotFound(err, sentinel error, kind string) error {
	if errors.Is(err, sentinel) {
		return errorbank.NotFound(kind + " not found")
	}
	return errorbank.Internal("failed to load "+kind, errorbank.WithCause(err))
}

func wrapNameConflict(span trace.Span, err error, kind, name string) error {
	if database.IsUniqueViolation(err) {
		return errorbank.Conflict(fmt.Sprintf("%s named %q already exists", kind, name))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	return errorbank.Internal("failed to save "+kind, errorbank.WithCause(err))
}

func idStr(id int64) string {
	return fmt.Sprintf("%d", id)
}
