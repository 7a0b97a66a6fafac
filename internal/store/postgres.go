package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"connecta/ingest-service/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the production store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the table and its indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// xmax is 0 only on the row version a plain INSERT created, so it tells an
// insert from the DO UPDATE branch within the same statement. A NULL
// posted_at ($13) keeps the stored value on update and falls back to
// last_scraped_at on insert.
const upsertSQL = `
	INSERT INTO external_gigs (
		id, source, external_id, title, description, company, location,
		job_type, category, niche, apply_url, skills, posted_at, deadline,
		is_external, last_scraped_at, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13::timestamptz, $15::timestamptz), $14, TRUE, $15, now(), now())
	ON CONFLICT (source, external_id) DO UPDATE SET
		title           = EXCLUDED.title,
		description     = EXCLUDED.description,
		company         = EXCLUDED.company,
		location        = EXCLUDED.location,
		job_type        = EXCLUDED.job_type,
		category        = EXCLUDED.category,
		niche           = EXCLUDED.niche,
		apply_url       = EXCLUDED.apply_url,
		skills          = EXCLUDED.skills,
		posted_at       = COALESCE($13::timestamptz, external_gigs.posted_at),
		deadline        = EXCLUDED.deadline,
		last_scraped_at = EXCLUDED.last_scraped_at,
		updated_at      = now()
	RETURNING id::text, posted_at, created_at, updated_at, (xmax = 0) AS inserted`

func (p *Postgres) Upsert(ctx context.Context, g *model.ExternalGig) (bool, error) {
	skills := g.Skills
	if skills == nil {
		skills = []string{}
	}
	var postedAt *time.Time
	if !g.PostedAt.IsZero() {
		postedAt = &g.PostedAt
	}

	var inserted bool
	err := p.pool.QueryRow(ctx, upsertSQL,
		uuid.New(), g.Source, g.ExternalID, g.Title, g.Description, g.Company, g.Location,
		g.JobType, g.Category, g.Niche, g.URL, skills, postedAt, g.Deadline,
		g.LastScrapedAt,
	).Scan(&g.ID, &g.PostedAt, &g.CreatedAt, &g.UpdatedAt, &inserted)
	if err != nil {
		return false, classify("upsert", err)
	}
	g.IsExternal = true
	return inserted, nil
}

func (p *Postgres) Delete(ctx context.Context, k model.Key) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM external_gigs WHERE source = $1 AND external_id = $2`,
		k.Source, k.ExternalID,
	)
	if err != nil {
		return false, classify("delete", err)
	}
	return tag.RowsAffected() > 0, nil
}

const selectColumns = `
	SELECT id::text, source, external_id, title, description, company, location,
	       job_type, category, niche, apply_url, skills, posted_at, deadline,
	       is_external, last_scraped_at, created_at, updated_at
	FROM external_gigs`

func (p *Postgres) List(ctx context.Context, f model.ListFilter) ([]model.ExternalGig, error) {
	limit := ClampLimit(f.Limit)

	var (
		rows pgx.Rows
		err  error
	)
	if f.Source != "" {
		rows, err = p.pool.Query(ctx, selectColumns+` WHERE source = $1 ORDER BY posted_at DESC, id LIMIT $2`, f.Source, limit)
	} else {
		rows, err = p.pool.Query(ctx, selectColumns+` ORDER BY posted_at DESC, id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, classify("list", err)
	}
	defer rows.Close()

	gigs := make([]model.ExternalGig, 0)
	for rows.Next() {
		var g model.ExternalGig
		if err := rows.Scan(
			&g.ID, &g.Source, &g.ExternalID, &g.Title, &g.Description, &g.Company, &g.Location,
			&g.JobType, &g.Category, &g.Niche, &g.URL, &g.Skills, &g.PostedAt, &g.Deadline,
			&g.IsExternal, &g.LastScrapedAt, &g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		gigs = append(gigs, g)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list", err)
	}
	return gigs, nil
}

func (p *Postgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM external_gigs WHERE deadline IS NOT NULL AND deadline < $1`, now)
	if err != nil {
		return 0, classify("delete expired", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM external_gigs WHERE last_scraped_at < $1`, cutoff)
	if err != nil {
		return 0, classify("delete stale", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Stats(ctx context.Context, now time.Time) (model.Stats, error) {
	var s model.Stats
	err := p.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE last_scraped_at >= $1),
		       count(*) FILTER (WHERE last_scraped_at <  $2)
		FROM external_gigs`,
		now.Add(-recentWindow), now.Add(-staleWindow),
	).Scan(&s.Total, &s.RecentlyActive, &s.Stale)
	if err != nil {
		return model.Stats{}, classify("stats", err)
	}
	return s, nil
}

// classify wraps err with op and maps integrity violations to ErrConstraint.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		return fmt.Errorf("%s: %w: %s (%s)", op, ErrConstraint, pgErr.Message, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
