// Package stats builds the dashboard summary shown on the home screen.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ekklesia/commhub/internal/pkg/logger"
)

const (
	cacheKey = "stats:dashboard"
	cacheTTL = 30 * time.Second
)

// Counts are the raw aggregates read from storage.
type Counts struct {
	TotalContacts          int            `json:"total_contacts"`
	OptedOutSMS            int            `json:"opted_out_sms"`
	CommunicationsByStatus map[string]int `json:"communications_by_status"`
	CountsByType           map[string]int `json:"counts_by_type"`
	TotalMessagesSent      int            `json:"total_messages_sent"`
	TotalMessagesFailed    int            `json:"total_messages_failed"`
	ActiveScenarios        int            `json:"active_scenarios"`
	AttendanceThisWeek     int            `json:"attendance_this_week"`
}

// ProviderStats lists the SMS providers configured at startup.
type ProviderStats struct {
	TotalProviders int      `json:"total_providers"`
	Providers      []string `json:"providers"`
}

// Dashboard is the full summary.
type Dashboard struct {
	Counts
	Providers   ProviderStats `json:"providers"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Repository reads aggregates. weekStart bounds the attendance count.
type Repository interface {
	Counts(ctx context.Context, weekStart time.Time) (*Counts, error)
}

// ProviderLister reports configured providers in preference order.
type ProviderLister interface {
	Names() []string
}

// Service computes and caches the dashboard.
type Service struct {
	repo      Repository
	providers ProviderLister
	cache     *redis.Client
	group     singleflight.Group
	now       func() time.Time
}

// NewService creates a stats service. cache and providers may be nil.
func NewService(repo Repository, providers ProviderLister, cache *redis.Client) *Service {
	return &Service{repo: repo, providers: providers, cache: cache, now: func() time.Time { return time.Now().UTC() }}
}

// Providers returns the configured SMS providers.
func (s *Service) Providers() ProviderStats {
	names := []string{}
	if s.providers != nil {
		if n := s.providers.Names(); n != nil {
			names = n
		}
	}
	return ProviderStats{TotalProviders: len(names), Providers: names}
}

// Dashboard returns the summary, served from Redis when a fresh copy exists.
// Cache failures fall through to the database.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	if d := s.cached(ctx); d != nil {
		return d, nil
	}
	v, err, _ := s.group.Do(cacheKey, func() (interface{}, error) {
		return s.compute(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dashboard), nil
}

// Invalidate drops the cached dashboard.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey).Err(); err != nil {
		logger.Warn("stats cache invalidate failed", "error", err)
	}
}

func (s *Service) cached(ctx context.Context) *Dashboard {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("stats cache read failed", "error", err)
		}
		return nil
	}
	var d Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil
	}
	return &d
}

func (s *Service) compute(ctx context.Context) (*Dashboard, error) {
	now := s.now()
	counts, err := s.repo.Counts(ctx, WeekStart(now))
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	if counts.CommunicationsByStatus == nil {
		counts.CommunicationsByStatus = map[string]int{}
	}
	if counts.CountsByType == nil {
		counts.CountsByType = map[string]int{}
	}
	d := &Dashboard{Counts: *counts, Providers: s.Providers(), GeneratedAt: now}

	if s.cache != nil {
		if raw, err := json.Marshal(d); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, cacheTTL).Err(); err != nil {
				logger.Warn("stats cache write failed", "error", err)
			}
		}
	}
	return d, nil
}

// WeekStart returns Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
