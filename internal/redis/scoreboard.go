package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	teamsKey         = "scoreboard:teams"
	explorersKey     = "scoreboard:explorers"
	teamNamesKey     = "scoreboard:teams:names"
	explorerNamesKey = "scoreboard:explorers:names"
)

// Scoreboard keeps realtime team and explorer XP rankings in sorted sets.
// Postgres stays the source of truth; the reconcile worker overwrites drift.
type Scoreboard struct {
	client *redis.Client
	logger *slog.Logger
}

// NewScoreboard creates a new Redis scoreboard
func NewScoreboard(cfg *config.RedisConfig, logger *slog.Logger) (*Scoreboard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Scoreboard{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *Scoreboard) Close() error {
	return s.client.Close()
}

// Ping checks Redis is reachable
func (s *Scoreboard) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// IncrementExplorer adds delta to an explorer's score and returns the new score
func (s *Scoreboard) IncrementExplorer(ctx context.Context, profileID, delta int64) (int64, error) {
	score, err := s.client.ZIncrBy(ctx, explorersKey, float64(delta), member(profileID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing explorer score: %w", err)
	}
	return int64(score), nil
}

// IncrementTeam adds delta to a team's score and returns the new score
func (s *Scoreboard) IncrementTeam(ctx context.Context, teamID, delta int64) (int64, error) {
	score, err := s.client.ZIncrBy(ctx, teamsKey, float64(delta), member(teamID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing team score: %w", err)
	}
	return int64(score), nil
}

// TopTeams returns the n highest scoring teams
func (s *Scoreboard) TopTeams(ctx context.Context, n int) ([]domain.ScoreboardEntry, error) {
	return s.top(ctx, teamsKey, teamNamesKey, n)
}

// TopExplorers returns the n highest scoring explorers
func (s *Scoreboard) TopExplorers(ctx context.Context, n int) ([]domain.ScoreboardEntry, error) {
	return s.top(ctx, explorersKey, explorerNamesKey, n)
}

func (s *Scoreboard) top(ctx context.Context, key, namesKey string, n int) ([]domain.ScoreboardEntry, error) {
	if n <= 0 {
		return []domain.ScoreboardEntry{}, nil
	}
	results, err := s.client.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top %d: %w", n, err)
	}

	entries, err := toEntries(results)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	fields := make([]string, len(results))
	for i, result := range results {
		fields[i] = result.Member.(string)
	}
	names, err := s.client.HMGet(ctx, namesKey, fields...).Result()
	if err != nil {
		// Names are cosmetic; rankings are still valid without them
		s.logger.Warn("failed to load scoreboard names", "key", namesKey, "error", err)
		return entries, nil
	}
	for i, name := range names {
		if name, ok := name.(string); ok {
			entries[i].Name = name
		}
	}
	return entries, nil
}

// BatchSetTeams overwrites team scores and names using pipelining
func (s *Scoreboard) BatchSetTeams(ctx context.Context, teams []domain.TeamTotals) error {
	if len(teams) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, team := range teams {
		pipe.ZAdd(ctx, teamsKey, redis.Z{
			Score:  float64(team.TeamXP),
			Member: member(team.TeamID),
		})
		pipe.HSet(ctx, teamNamesKey, member(team.TeamID), team.Name)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting team scores: %w", err)
	}
	return nil
}

// BatchSetExplorers overwrites explorer scores and names using pipelining
func (s *Scoreboard) BatchSetExplorers(ctx context.Context, explorers []domain.ScoreboardEntry) error {
	if len(explorers) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, explorer := range explorers {
		pipe.ZAdd(ctx, explorersKey, redis.Z{
			Score:  float64(explorer.Score),
			Member: member(explorer.ID),
		})
		pipe.HSet(ctx, explorerNamesKey, member(explorer.ID), explorer.Name)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting explorer scores: %w", err)
	}
	return nil
}

// Reset clears both scoreboards
func (s *Scoreboard) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, teamsKey, explorersKey, teamNamesKey, explorerNamesKey).Err(); err != nil {
		return fmt.Errorf("resetting scoreboard: %w", err)
	}
	return nil
}

func member(id int64) string {
	return strconv.FormatInt(id, 10)
}

// toEntries converts sorted set results, already in descending order, to ranked entries
func toEntries(results []redis.Z) ([]domain.ScoreboardEntry, error) {
	entries := make([]domain.ScoreboardEntry, len(results))
	for i, result := range results {
		raw, _ := result.Member.(string)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing scoreboard member %q: %w", raw, err)
		}
		entries[i] = domain.ScoreboardEntry{
			Rank:  int64(i + 1),
			ID:    id,
			Score: int64(result.Score),
		}
	}
	return entries, nil
}
