package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doodlemind/doodle.ai/internal/mind"
	"github.com/doodlemind/doodle.ai/internal/models"
)

// ErrRosterTableMissing reports that the personas catalog table does not
// exist yet; callers fall back to the built-in roster.
var ErrRosterTableMissing = errors.New("personas table does not exist")

// PersonaRepository serves the persona catalog from Postgres. The catalog
// holds the fixed persona definitions; per-user unlock state lives in the
// session snapshot, not here.
type PersonaRepository struct {
	pool *pgxpool.Pool
}

func NewPersonaRepository(pool *pgxpool.Pool) *PersonaRepository {
	return &PersonaRepository{pool: pool}
}

// LoadRoster reads the catalog in display order. A missing table maps to
// ErrRosterTableMissing so a fresh deployment can run before seeding.
func (r *PersonaRepository) LoadRoster(ctx context.Context) ([]models.Persona, error) {
	if r.pool == nil {
		return nil, errors.New("postgres pool is nil")
	}

	const query = `SELECT id, name, title, type_code, skill_name, skill_effect, level, cost
		FROM personas ORDER BY position`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
			return nil, ErrRosterTableMissing
		}
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var roster []models.Persona
	for rows.Next() {
		var p models.Persona
		if err := rows.Scan(&p.ID, &p.Name, &p.Title, &p.TypeCode, &p.SkillName, &p.SkillEffect, &p.Level, &p.Cost); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		roster = append(roster, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personas: %w", err)
	}
	return roster, nil
}

// SeedRoster creates the catalog table when needed and upserts the built-in
// roster into it, preserving display order.
func (r *PersonaRepository) SeedRoster(ctx context.Context) error {
	if r.pool == nil {
		return errors.New("postgres pool is nil")
	}

	const ddl = `CREATE TABLE IF NOT EXISTS personas (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		title        TEXT NOT NULL,
		type_code    CHAR(4) NOT NULL,
		skill_name   TEXT NOT NULL,
		skill_effect TEXT NOT NULL,
		level        INT NOT NULL DEFAULT 1,
		cost         INT NOT NULL DEFAULT 0,
		position     INT NOT NULL
	)`
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create personas table: %w", err)
	}

	const upsert = `INSERT INTO personas
		(id, name, title, type_code, skill_name, skill_effect, level, cost, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			title = EXCLUDED.title,
			type_code = EXCLUDED.type_code,
			skill_name = EXCLUDED.skill_name,
			skill_effect = EXCLUDED.skill_effect,
			level = EXCLUDED.level,
			cost = EXCLUDED.cost,
			position = EXCLUDED.position`

	batch := &pgx.Batch{}
	for i, p := range mind.DefaultRoster() {
		batch.Queue(upsert, p.ID, p.Name, p.Title, p.TypeCode, p.SkillName, p.SkillEffect, p.Level, p.Cost, i)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range mind.DefaultRoster() {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("seed persona: %w", err)
		}
	}
	return nil
}
