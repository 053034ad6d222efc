package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
	"github.com/explorers-club/progress/internal/metrics"
)

const releaseAttempts = 3

// Awarder credits a completed activity
type Awarder interface {
	CompleteActivity(ctx context.Context, activityID, profileID int64) (*domain.AwardResult, error)
}

// Scoreboard mirrors XP into the realtime rankings
type Scoreboard interface {
	IncrementExplorer(ctx context.Context, profileID, delta int64) (int64, error)
	IncrementTeam(ctx context.Context, teamID, delta int64) (int64, error)
}

// Notifier pushes completion events to connected clients
type Notifier interface {
	BroadcastFeedEntry(teamID int64, entry domain.FeedEntry)
	BroadcastTeamXP(teamID, gained, total int64)
}

// CompletionService records activity completions and runs the award engine
// exactly once per (profile, activity).
type CompletionService struct {
	store      CompletionStore
	awards     Awarder
	scoreboard Scoreboard
	notifier   Notifier
	config     *config.ProgressConfig
	clock      func() time.Time
	logger     *slog.Logger
}

// NewCompletionService creates a new completion service
func NewCompletionService(
	store CompletionStore,
	awards Awarder,
	cfg *config.ProgressConfig,
	logger *slog.Logger,
) *CompletionService {
	return &CompletionService{
		store:  store,
		awards: awards,
		config: cfg,
		clock:  time.Now,
		logger: logger,
	}
}

// SetScoreboard sets the realtime scoreboard mirrored after each award
func (s *CompletionService) SetScoreboard(scoreboard Scoreboard) {
	s.scoreboard = scoreboard
}

// SetNotifier sets the notifier used to broadcast completions
func (s *CompletionService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Submit marks the activity completed for the profile and credits its XP.
// A repeated submission for the same pair returns domain.ErrAlreadyCompleted
// without crediting anything.
func (s *CompletionService) Submit(ctx context.Context, submission domain.CompletionSubmission) (*domain.CompletionOutcome, error) {
	if err := submission.Validate(); err != nil {
		metrics.CompletionsRejected.WithLabelValues("invalid").Inc()
		return nil, err
	}

	completedAt := s.clock().UTC()

	var claimed bool
	err := callStore(ctx, s.config.StoreTimeout, func(ctx context.Context) error {
		var err error
		claimed, err = s.store.ClaimCompletion(ctx, submission.ProfileID, submission.ActivityID, submission.Notes, completedAt)
		return err
	})
	if err != nil {
		metrics.CompletionsRejected.WithLabelValues("store").Inc()
		return nil, fmt.Errorf("claiming completion: %w", classify(err, domain.ErrUpdateFailed))
	}
	if !claimed {
		metrics.CompletionsRejected.WithLabelValues("duplicate").Inc()
		return nil, domain.ErrAlreadyCompleted
	}

	award, err := s.awards.CompleteActivity(ctx, submission.ActivityID, submission.ProfileID)
	if err != nil {
		metrics.CompletionsRejected.WithLabelValues(rejectReason(err)).Inc()
		if domain.IsXPPersisted(err) || domain.IsCreditUncertain(err) {
			// Releasing could credit the pair twice
			return nil, err
		}
		if relErr := s.release(ctx, submission); relErr != nil {
			return nil, fmt.Errorf("%w; claim not released: %v", err, relErr)
		}
		return nil, err
	}
	metrics.CompletionsAwarded.Inc()

	s.mirrorScoreboard(ctx, submission.ProfileID, award)

	entry := s.feedEntry(ctx, submission, completedAt)
	if s.notifier != nil && award.TeamID != nil {
		s.notifier.BroadcastFeedEntry(*award.TeamID, entry)
	}

	return &domain.CompletionOutcome{Award: award, Entry: entry}, nil
}

// SubmitBatch submits completions one by one, logging and skipping failures.
// Retryable failures are joined into the returned error so the caller can
// redeliver the batch; duplicates make redelivery safe.
func (s *CompletionService) SubmitBatch(ctx context.Context, submissions []domain.CompletionSubmission) error {
	var retry []error
	for _, submission := range submissions {
		_, err := s.Submit(ctx, submission)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrAlreadyCompleted):
			s.logger.Debug("skipping duplicate completion",
				"profile_id", submission.ProfileID,
				"activity_id", submission.ActivityID,
			)
		default:
			s.logger.Error("failed to submit completion in batch",
				"profile_id", submission.ProfileID,
				"activity_id", submission.ActivityID,
				"error", err,
			)
			if domain.IsRetryable(err) {
				retry = append(retry, err)
			}
		}
	}
	return errors.Join(retry...)
}

// release clears a claimed completion so the submission can be retried. A
// claim that cannot be released blocks the pair until an operator clears it.
func (s *CompletionService) release(ctx context.Context, submission domain.CompletionSubmission) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= releaseAttempts; attempt++ {
		err = callStore(ctx, s.config.StoreTimeout, func(ctx context.Context) error {
			return s.store.ReleaseCompletion(ctx, submission.ProfileID, submission.ActivityID)
		})
		if err == nil {
			return nil
		}
		s.logger.Warn("failed to release completion claim",
			"profile_id", submission.ProfileID,
			"activity_id", submission.ActivityID,
			"attempt", attempt,
			"error", err,
		)
	}

	metrics.StuckClaims.Inc()
	s.logger.Error("completion claim left held",
		"profile_id", submission.ProfileID,
		"activity_id", submission.ActivityID,
		"error", err,
	)
	return err
}

func (s *CompletionService) mirrorScoreboard(ctx context.Context, profileID int64, award *domain.AwardResult) {
	if s.scoreboard == nil {
		return
	}
	if _, err := s.scoreboard.IncrementExplorer(ctx, profileID, award.XPGained); err != nil {
		s.logger.Warn("failed to mirror explorer xp", "profile_id", profileID, "error", err)
	}
	if award.TeamID == nil || !award.TeamXPUpdated {
		return
	}
	total, err := s.scoreboard.IncrementTeam(ctx, *award.TeamID, award.TeamXPGained)
	if err != nil {
		s.logger.Warn("failed to mirror team xp", "team_id", *award.TeamID, "error", err)
		return
	}
	if s.notifier != nil {
		s.notifier.BroadcastTeamXP(*award.TeamID, award.TeamXPGained, total)
	}
}

// feedEntry loads the joined completion row for broadcasting, falling back to
// the bare ids when the lookup fails.
func (s *CompletionService) feedEntry(ctx context.Context, submission domain.CompletionSubmission, completedAt time.Time) domain.FeedEntry {
	var row *domain.TeamCompletion
	err := callStore(ctx, s.config.StoreTimeout, func(ctx context.Context) error {
		var err error
		row, err = s.store.GetCompletion(ctx, submission.ProfileID, submission.ActivityID)
		return err
	})
	if err != nil || row == nil {
		s.logger.Warn("failed to load completion for feed", "profile_id", submission.ProfileID, "error", err)
		return domain.FeedEntry{
			Profile:     domain.ProfileSummary{ID: submission.ProfileID},
			Activity:    domain.ActivitySummary{ID: submission.ActivityID},
			CompletedAt: completedAt,
			Notes:       submission.Notes,
			Status:      domain.FeedStatusCompleted,
		}
	}
	return NewFeedEntry(*row)
}

func rejectReason(err error) string {
	switch {
	case domain.IsNotFoundError(err):
		return "not_found"
	case domain.IsRetryable(err):
		return "unavailable"
	case domain.IsCreditUncertain(err):
		return "uncertain"
	case domain.IsXPPersisted(err):
		return "badges"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	default:
		return "update_failed"
	}
}
