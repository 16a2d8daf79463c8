package main

import (
	"context"
	"fmt"

	"venueattend/internal/config"
	"venueattend/internal/identity"
	"venueattend/internal/ledger"
	"venueattend/internal/location"
	"venueattend/internal/schedule"
	"venueattend/internal/store"
)

// backends holds one implementation of every store, either all Postgres or
// all in memory.
type backends struct {
	identity  identity.Store
	locations location.Store
	schedules schedule.Store
	ledger    ledger.Store
	db        *store.DB
}

func openBackends(ctx context.Context, cfg config.App) (*backends, error) {
	if cfg.StoreBackend == "memory" {
		schedules := schedule.NewMemoryStore()
		attendance := ledger.NewMemoryStore()
		schedules.GuardDeletes(attendance)
		return &backends{
			identity:  identity.NewMemoryStore(),
			locations: location.NewMemoryStore(schedules),
			schedules: schedules,
			ledger:    attendance,
		}, nil
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &backends{
		identity:  identity.NewRepository(db.Client),
		locations: location.NewRepository(db.Client),
		schedules: schedule.NewRepository(db.Client),
		ledger:    ledger.NewRepository(db.Client),
		db:        db,
	}, nil
}

func (b *backends) Close() error {
	return b.db.Close()
}
