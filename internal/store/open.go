package store

import (
	"context"
	"fmt"
	"log"

	"connecta/ingest-service/internal/config"
	"connecta/ingest-service/internal/db"
)

// Opened is a connected store with its liveness check and closer.
type Opened struct {
	Store Store
	Check db.Check
	Close func()
}

// Open connects the configured driver. For postgres it also creates the
// schema when missing.
func Open(ctx context.Context, driver, databaseURL string) (*Opened, error) {
	switch driver {
	case config.DriverMemory:
		log.Println("[store] Using in-memory store (data is lost on exit)")
		m := NewMemory()
		return &Opened{
			Store: m,
			Check: db.Check{Name: "memory", Ping: m.Ping},
			Close: func() {},
		}, nil

	case config.DriverPostgres:
		log.Println("[store] Connecting to PostgreSQL…")
		pool, err := db.NewPostgresPool(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		pg := NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		log.Println("[store] PostgreSQL connected ✓")
		return &Opened{Store: pg, Check: db.PostgresCheck(pool), Close: pool.Close}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
