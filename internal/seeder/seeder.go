package seeders

import (
	"log/slog"
	"time"

	"github.com/cradoe/leverpad/internal/repository"
)

const defaultTimeout = 5 * time.Second

type Seeder struct {
	DB     repository.Database
	Logger *slog.Logger
}

func New(db repository.Database, logger *slog.Logger) *Seeder {
	return &Seeder{
		DB:     db,
		Logger: logger,
	}
}

// Run fills an empty development database. It is safe to run twice.
func (seeder *Seeder) Run() error {
	return seeder.seedProfiles()
}
