package registry

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"

	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
)

var repoTracer = otel.Tracer("github.com/millflow/millflow/repository/registry")

// Not-found sentinels per reference kind.
var (
	ErrPartyNotFound   = errors.New("party not found")
	ErrMillNotFound    = errors.New("mill not found")
	ErrQualityNotFound = errors.New("quality not found")
	ErrProcessNotFound = errors.New("process not found")
)

// Repository is the simple key-uniqueness store for the reference registry:
// parties, mills, qualities and processes. Name uniqueness is enforced by
// unique indexes.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

func create[T any](ctx context.Context, db *bun.DB, model *T) error {
	_, err := db.NewInsert().Model(model).Exec(ctx)
	return err
}

func getByID[T any](ctx context.Context, db *bun.DB, id int64, notFound error) (*T, error) {
	model := new(T)
	err := db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return model, nil
}

func list[T any](ctx context.Context, db *bun.DB, page, limit int) ([]*T, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	var models []*T
	count, err := db.NewSelect().Model(&models).
		OrderExpr("name ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return models, count, nil
}

func update[T any](ctx context.Context, db *bun.DB, model *T, notFound error, columns ...string) error {
	res, err := db.NewUpdate().Model(model).Column(columns...).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func remove[T any](ctx context.Context, db *bun.DB, id int64, notFound error) error {
	res, err := db.NewDelete().Model((*T)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

// CreateParty persists a new party.
func (r *Repository) CreateParty(ctx context.Context, p *entity.Party) error {
	ctx, span := repoTracer.Start(ctx, "RegistryRepository.CreateParty")
	defer span.End()
	return create(ctx, r.writer, p)
}

// GetParty fetches a party by id.
func (r *Repository) GetParty(ctx context.Context, id int64) (*entity.Party, error) {
	return getByID[entity.Party](ctx, r.reader, id, ErrPartyNotFound)
}

// ListParties returns a page of parties ordered by name.
func (r *Repository) ListParties(ctx context.Context, page, limit int) ([]*entity.Party, int, error) {
	return list[entity.Party](ctx, r.reader, page, limit)
}

// UpdateParty replaces a party's fields.
func (r *Repository) UpdateParty(ctx context.Context, p *entity.Party) error {
	return update(ctx, r.writer, p, ErrPartyNotFound, "name", "contact_person", "phone", "address", "updated_at")
}

// DeleteParty removes a party. Callers must first confirm no order
// references it.
func (r *Repository) DeleteParty(ctx context.Context, id int64) error {
	return remove[entity.Party](ctx, r.writer, id, ErrPartyNotFound)
}

// CreateMill persists a new mill.
func (r *Repository) CreateMill(ctx context.Context, m *entity.Mill) error {
	ctx, span := repoTracer.Start(ctx, "RegistryRepository.CreateMill")
	defer span.End()
	return create(ctx, r.writer, m)
}

// GetMill fetches a mill by id.
func (r *Repository) GetMill(ctx context.Context, id int64) (*entity.Mill, error) {
	return getByID[entity.Mill](ctx, r.reader, id, ErrMillNotFound)
}

// ListMills returns a page of mills ordered by name.
func (r *Repository) ListMills(ctx context.Context, page, limit int) ([]*entity.Mill, int, error) {
	return list[entity.Mill](ctx, r.reader, page, limit)
}

// UpdateMill replaces a mill's fields.
func (r *Repository) UpdateMill(ctx context.Context, m *entity.Mill) error {
	return update(ctx, r.writer, m, ErrMillNotFound, "name", "contact_person", "phone", "address", "updated_at")
}

// DeleteMill removes a mill. Dependent mill inputs are cascaded by the
// service before this call.
func (r *Repository) DeleteMill(ctx context.Context, id int64) error {
	return remove[entity.Mill](ctx, r.writer, id, ErrMillNotFound)
}

// CreateQuality persists a new quality.
func (r *Repository) CreateQuality(ctx context.Context, q *entity.Quality) error {
	ctx, span := repoTracer.Start(ctx, "RegistryRepository.CreateQuality")
	defer span.End()
	return create(ctx, r.writer, q)
}

// GetQuality fetches a quality by id.
func (r *Repository) GetQuality(ctx context.Context, id int64) (*entity.Quality, error) {
	return getByID[entity.Quality](ctx, r.reader, id, ErrQualityNotFound)
}

// ListQualities returns a page of qualities ordered by name.
func (r *Repository) ListQualities(ctx context.Context, page, limit int) ([]*entity.Quality, int, error) {
	return list[entity.Quality](ctx, r.reader, page, limit)
}

// UpdateQuality replaces a quality's fields.
func (r *Repository) UpdateQuality(ctx context.Context, q *entity.Quality) error {
	return update(ctx, r.writer, q, ErrQualityNotFound, "name", "description", "updated_at")
}

// DeleteQuality removes a quality.
func (r *Repository) DeleteQuality(ctx context.Context, id int64) error {
	return remove[entity.Quality](ctx, r.writer, id, ErrQualityNotFound)
}

// CreateProcess persists a new process.
func (r *Repository) CreateProcess(ctx context.Context, p *entity.Process) error {
	ctx, span := repoTracer.Start(ctx, "RegistryRepository.CreateProcess")
	defer span.End()
	return create(ctx, r.writer, p)
}

// GetProcess fetches a process by id.
func (r *Repository) GetProcess(ctx context.Context, id int64) (*entity.Process, error) {
	return getByID[entity.Process](ctx, r.reader, id, ErrProcessNotFound)
}

// ListProcesses returns a page of processes ordered by name.
func (r *Repository) ListProcesses(ctx context.Context, page, limit int) ([]*entity.Process, int, error) {
	return list[entity.Process](ctx, r.reader, page, limit)
}

// UpdateProcess replaces a process's fields.
func (r *Repository) UpdateProcess(ctx context.Context, p *entity.Process) error {
	return update(ctx, r.writer, p, ErrProcessNotFound, "name", "updated_at")
}

// DeleteProcess removes a process.
func (r *Repository) DeleteProcess(ctx context.Context, id int64) error {
	return remove[entity.Process](ctx, r.writer, id, ErrProcessNotFound)
}
