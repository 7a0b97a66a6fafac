package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrDependencyLost marks a fatal loss of a required external connection.
// The top-level runtime terminates the process when it sees it and relies on
// the supervisor to restart.
var ErrDependencyLost = errors.New("required dependency lost")

// DependencyLostError carries which dependency failed and the last error.
type DependencyLostError struct {
	Dependency string
	Failures   int
	Err        error
}

func (e *DependencyLostError) Error() string {
	return fmt.Sprintf("%s unreachable after %d consecutive checks: %v", e.Dependency, e.Failures, e.Err)
}

func (e *DependencyLostError) Unwrap() error { return e.Err }

func (e *DependencyLostError) Is(target error) bool { return target == ErrDependencyLost }

// IsFatal reports whether err must terminate the process.
func IsFatal(err error) bool { return errors.Is(err, ErrDependencyLost) }

// Check is one named liveness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// PostgresCheck probes a pgx pool.
func PostgresCheck(pool *pgxpool.Pool) Check {
	return Check{Name: "postgres", Ping: pool.Ping}
}

// RedisCheck probes a Redis client.
func RedisCheck(rdb *redis.Client) Check {
	return Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }}
}

// Watchdog pings its checks on an interval and reports the first dependency
// that fails maxFailures times in a row.
type Watchdog struct {
	checks      []Check
	interval    time.Duration
	maxFailures int
}

// NewWatchdog constructs a Watchdog.
func NewWatchdog(interval time.Duration, maxFailures int, checks ...Check) *Watchdog {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Watchdog{checks: checks, interval: interval, maxFailures: maxFailures}
}

// Run blocks until ctx is done (returns nil) or a dependency is lost
// (returns a *DependencyLostError).
func (w *Watchdog) Run(ctx context.Context) error {
	failures := make([]int, len(w.checks))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for i, c := range w.checks {
			pingCtx, cancel := context.WithTimeout(ctx, w.interval)
			err := c.Ping(pingCtx)
			cancel()

			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				if failures[i] > 0 {
					slog.Info("dependency recovered", "dependency", c.Name, "failures", failures[i])
				}
				failures[i] = 0
				continue
			}

			failures[i]++
			slog.Warn("dependency check failed", "dependency", c.Name, "failures", failures[i], "err", err)
			if failures[i] >= w.maxFailures {
				return &DependencyLostError{Dependency: c.Name, Failures: failures[i], Err: err}
			}
		}
	}
}
