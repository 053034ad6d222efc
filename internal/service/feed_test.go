package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/explorers-club/progress/internal/domain"
)

func completion(profileID, teamID, activityID int64, at *time.Time) domain.TeamCompletion {
	return domain.TeamCompletion{
		Profile:     domain.ProfileSummary{ID: profileID, TeamID: teamID},
		Activity:    domain.ActivitySummary{ID: activityID},
		CompletedAt: at,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestGetTeamActivityLogsOrdersAndTags(t *testing.T) {
	base := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	store := &fakeFeedStore{rows: []domain.TeamCompletion{
		completion(1, 3, 100, timePtr(base)),
		completion(2, 3, 101, timePtr(base.Add(2*time.Hour))),
		completion(1, 3, 102, timePtr(base.Add(time.Hour))),
	}}
	builder := NewFeedBuilder(store, progressConfig(), testLogger())

	entries, err := builder.GetTeamActivityLogs(context.Background(), 3, 10)
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantOrder := []int64{101, 102, 100}
	for i, entry := range entries {
		if entry.Activity.ID != wantOrder[i] {
			t.Fatalf("entry %d: expected activity %d, got %d", i, wantOrder[i], entry.Activity.ID)
		}
		if entry.Status != domain.FeedStatusCompleted {
			t.Fatalf("entry %d: expected completed status, got %q", i, entry.Status)
		}
		if i > 0 && entry.CompletedAt.After(entries[i-1].CompletedAt) {
			t.Fatalf("entries out of order at %d", i)
		}
	}
	if store.teamID != 3 || store.limit != 10 {
		t.Fatalf("expected store called with team 3 limit 10, got %d/%d", store.teamID, store.limit)
	}
}

func TestGetTeamActivityLogsFiltersForeignAndIncompleteRows(t *testing.T) {
	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	store := &fakeFeedStore{rows: []domain.TeamCompletion{
		completion(1, 3, 100, timePtr(at)),
		completion(2, 4, 101, timePtr(at)),
		completion(3, 3, 102, nil),
	}}
	builder := NewFeedBuilder(store, progressConfig(), testLogger())

	entries, err := builder.GetTeamActivityLogs(context.Background(), 3, 10)
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	if len(entries) != 1 || entries[0].Activity.ID != 100 {
		t.Fatalf("expected only activity 100, got %+v", entries)
	}
	for _, entry := range entries {
		if entry.Profile.TeamID != 3 {
			t.Fatalf("expected team 3, got %d", entry.Profile.TeamID)
		}
	}
}

func TestGetTeamActivityLogsLimits(t *testing.T) {
	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	var rows []domain.TeamCompletion
	for i := 0; i < 150; i++ {
		rows = append(rows, completion(1, 3, int64(i), timePtr(at.Add(time.Duration(i)*time.Minute))))
	}

	tests := []struct {
		name      string
		limit     int
		wantQuery int
		wantLen   int
	}{
		{name: "default", limit: 0, wantQuery: 20, wantLen: 20},
		{name: "social feed", limit: 50, wantQuery: 50, wantLen: 50},
		{name: "capped", limit: 500, wantQuery: 100, wantLen: 100},
		{name: "small", limit: 3, wantQuery: 3, wantLen: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeFeedStore{rows: rows}
			builder := NewFeedBuilder(store, progressConfig(), testLogger())

			entries, err := builder.GetTeamActivityLogs(context.Background(), 3, tt.limit)
			if err != nil {
				t.Fatalf("get feed: %v", err)
			}
			if store.limit != tt.wantQuery {
				t.Fatalf("expected query limit %d, got %d", tt.wantQuery, store.limit)
			}
			if len(entries) != tt.wantLen {
				t.Fatalf("expected %d entries, got %d", tt.wantLen, len(entries))
			}
			if entries[0].Activity.ID != 149 {
				t.Fatalf("expected newest first, got activity %d", entries[0].Activity.ID)
			}
		})
	}
}

func TestGetSocialFeedLimits(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "unset uses social size", limit: 0, want: 50},
		{name: "explicit limit wins", limit: 5, want: 5},
		{name: "capped at max", limit: 500, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeFeedStore{}
			builder := NewFeedBuilder(store, progressConfig(), testLogger())

			if _, err := builder.GetSocialFeed(context.Background(), 3, tt.limit); err != nil {
				t.Fatalf("get social feed: %v", err)
			}
			if store.limit != tt.want {
				t.Fatalf("expected store limit %d, got %d", tt.want, store.limit)
			}
		})
	}
}

func TestGetTeamActivityLogsPropagatesStoreError(t *testing.T) {
	store := &fakeFeedStore{err: errors.New(`relation "profiles" does not exist`)}
	builder := NewFeedBuilder(store, progressConfig(), testLogger())

	entries, err := builder.GetTeamActivityLogs(context.Background(), 3, 20)
	if !errors.Is(err, domain.ErrQueryFailed) {
		t.Fatalf("expected ErrQueryFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), `relation "profiles" does not exist`) {
		t.Fatalf("expected store message attached, got %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries, got %v", entries)
	}
	if store.callCount != 1 {
		t.Fatalf("expected no retry, got %d calls", store.callCount)
	}
}

func TestBuildFeedKeepsStoreOrderForEqualTimes(t *testing.T) {
	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	rows := []domain.TeamCompletion{
		completion(1, 3, 1, timePtr(at)),
		completion(2, 3, 2, timePtr(at)),
		completion(3, 3, 3, timePtr(at)),
	}
	entries := BuildFeed(rows, 3, 10)
	for i, entry := range entries {
		if entry.Activity.ID != int64(i+1) {
			t.Fatalf("expected stable order, got %+v", entries)
		}
	}
}
