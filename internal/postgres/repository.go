package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/explorers-club/progress/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS teams (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			colour VARCHAR(32) NOT NULL DEFAULT '',
			team_xp BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			nickname VARCHAR(255) NOT NULL DEFAULT '',
			colour VARCHAR(32) NOT NULL DEFAULT '',
			team_id BIGINT REFERENCES teams(id) ON DELETE SET NULL,
			xp BIGINT NOT NULL DEFAULT 0,
			team_contribution BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			long_description TEXT NOT NULL DEFAULT '',
			hints TEXT NOT NULL DEFAULT '',
			tips TEXT NOT NULL DEFAULT '',
			trivia TEXT NOT NULL DEFAULT '',
			image TEXT,
			xp BIGINT NOT NULL DEFAULT 0,
			categories TEXT[] NOT NULL DEFAULT '{}',
			photo_required BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS seasons (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255),
			hero_image TEXT,
			story TEXT NOT NULL DEFAULT '',
			story_parts TEXT[] NOT NULL DEFAULT '{}',
			story_slides TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chapters (
			id BIGSERIAL PRIMARY KEY,
			season_id BIGINT NOT NULL REFERENCES seasons(id) ON DELETE CASCADE,
			week_number INT NOT NULL,
			title VARCHAR(255) NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			body_parts TEXT[] NOT NULL DEFAULT '{}',
			body_slides TEXT[] NOT NULL DEFAULT '{}',
			unlock_date DATE NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chapter_activities (
			chapter_id BIGINT NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
			activity_id BIGINT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
			"order" INT NOT NULL DEFAULT 0,
			PRIMARY KEY (chapter_id, activity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_activity_progress (
			id BIGSERIAL PRIMARY KEY,
			profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			activity_id BIGINT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
			completed_at TIMESTAMPTZ,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(profile_id, activity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS badges (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			criteria JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS profile_badges (
			profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			badge_id BIGINT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
			awarded_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (profile_id, badge_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_team ON profiles(team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chapters_season_unlock ON chapters(season_id, unlock_date)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_completed ON user_activity_progress(completed_at DESC) WHERE completed_at IS NOT NULL`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// notFound maps missing rows and foreign key violations to domain.ErrNotFound
func notFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
