package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/entity"
)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Registry seeds the reference registry if the rows are missing: a few
// parties, mills, qualities and the standard processes. Idempotent via the
// name unique indexes.
func (s *Seeder) Registry(ctx context.Context) error {
	now := time.Now().UTC()

	parties := []entity.Party{
		{Name: "Shree Textiles", ContactPerson: "R. Mehta", Phone: "+91-98200-11001", CreatedAt: now, UpdatedAt: now},
		{Name: "Kiran Fabrics", ContactPerson: "S. Patel", Phone: "+91-98200-11002", CreatedAt: now, UpdatedAt: now},
	}
	for i := range parties {
		if _, err := s.db.NewInsert().Model(&parties[i]).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	mills := []entity.Mill{
		{Name: "Surat Process House", ContactPerson: "A. Shah", Phone: "+91-98200-22001", CreatedAt: now, UpdatedAt: now},
		{Name: "Pali Dyeing Works", ContactPerson: "M. Jain", Phone: "+91-98200-22002", CreatedAt: now, UpdatedAt: now},
	}
	for i := range mills {
		if _, err := s.db.NewInsert().Model(&mills[i]).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	qualities := []entity.Quality{
		{Name: "Cotton 60x60", Description: "60s count plain weave", CreatedAt: now, UpdatedAt: now},
		{Name: "Rayon 14kg", Description: "14kg rayon", CreatedAt: now, UpdatedAt: now},
		{Name: "Georgette", CreatedAt: now, UpdatedAt: now},
	}
	for i := range qualities {
		if _, err := s.db.NewInsert().Model(&qualities[i]).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	processes := []entity.Process{
		{Name: "dying", CreatedAt: now, UpdatedAt: now},
		{Name: "printing", CreatedAt: now, UpdatedAt: now},
		{Name: "finishing", CreatedAt: now, UpdatedAt: now},
	}
	for i := range processes {
		if _, err := s.db.NewInsert().Model(&processes[i]).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded reference registry",
			zap.Int("parties", len(parties)),
			zap.Int("mills", len(mills)),
			zap.Int("qualities", len(qualities)),
			zap.Int("processes", len(processes)),
		)
	}
	return nil
}
