// Package settings exposes the runtime-mutable TTR thresholds. Operators can
// change thresholds while the service runs, so providers re-read their
// backing store on every call instead of caching at startup.
package settings

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/noc-kit/faultdesk/internal/config"
	"github.com/noc-kit/faultdesk/internal/ttr"
)

// TTRSettings is the full threshold set consumed by the clock and the alert
// worker.
type TTRSettings struct {
	WarningHours         float64
	CriticalHours        float64
	DueSoonHours         float64
	NoUpdateAlertMinutes int
}

// Thresholds returns the subset the severity classifier needs.
func (s TTRSettings) Thresholds() ttr.Thresholds {
	return ttr.Thresholds{
		WarningHours:  s.WarningHours,
		CriticalHours: s.CriticalHours,
	}
}

// Provider yields the current settings snapshot per evaluation.
type Provider interface {
	TTRSettings(ctx context.Context) (TTRSettings, error)
}

// Store additionally supports writing settings back.
type Store interface {
	Provider
	UpdateTTRSettings(ctx context.Context, values TTRSettings) error
}

const settingsKey = "faultdesk:ttr_settings"

const (
	fieldWarningHours  = "warning_hours"
	fieldCriticalHours = "critical_hours"
	fieldDueSoonHours  = "due_soon_hours"
	fieldNoUpdateAlert = "no_update_alert_minutes"
)

// RedisStore reads and writes settings in a Redis hash. Every read is a fresh
// HGETALL; missing or unreachable values fall back to the configured defaults.
type RedisStore struct {
	client   *redis.Client
	defaults TTRSettings
}

// NewRedisStore builds a store backed by the given client.
func NewRedisStore(client *redis.Client, cfg config.TTRConfig) *RedisStore {
	return &RedisStore{
		client:   client,
		defaults: DefaultsFromConfig(cfg),
	}
}

// DefaultsFromConfig converts static config defaults into a settings value.
func DefaultsFromConfig(cfg config.TTRConfig) TTRSettings {
	return TTRSettings{
		WarningHours:         cfg.WarningHours,
		CriticalHours:        cfg.CriticalHours,
		DueSoonHours:         cfg.DueSoonHours,
		NoUpdateAlertMinutes: cfg.NoUpdateAlertMinutes,
	}
}

// TTRSettings returns the live settings, falling back to defaults when the
// hash is absent or Redis is unreachable.
func (s *RedisStore) TTRSettings(ctx context.Context) (TTRSettings, error) {
	values := s.defaults
	if s.client == nil {
		return values, nil
	}
	fields, err := s.client.HGetAll(ctx, settingsKey).Result()
	if err != nil || len(fields) == 0 {
		return values, nil
	}
	if v, ok := parseFloat(fields[fieldWarningHours]); ok {
		values.WarningHours = v
	}
	if v, ok := parseFloat(fields[fieldCriticalHours]); ok {
		values.CriticalHours = v
	}
	if v, ok := parseFloat(fields[fieldDueSoonHours]); ok {
		values.DueSoonHours = v
	}
	if v, ok := parseInt(fields[fieldNoUpdateAlert]); ok {
		values.NoUpdateAlertMinutes = v
	}
	return values, nil
}

// UpdateTTRSettings writes the full threshold set through to Redis.
func (s *RedisStore) UpdateTTRSettings(ctx context.Context, values TTRSettings) error {
	if s.client == nil {
		s.defaults = values
		return nil
	}
	return s.client.HSet(ctx, settingsKey,
		fieldWarningHours, formatFloat(values.WarningHours),
		fieldCriticalHours, formatFloat(values.CriticalHours),
		fieldDueSoonHours, formatFloat(values.DueSoonHours),
		fieldNoUpdateAlert, strconv.Itoa(values.NoUpdateAlertMinutes),
	).Err()
}

func parseFloat(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// StaticStore serves a fixed settings value guarded by a mutex. Used in tests
// and when Redis is not configured.
type StaticStore struct {
	mu     sync.RWMutex
	values TTRSettings
}

// NewStaticStore builds a static store with the given values.
func NewStaticStore(values TTRSettings) *StaticStore {
	return &StaticStore{values: values}
}

func (s *StaticStore) TTRSettings(ctx context.Context) (TTRSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values, nil
}

func (s *StaticStore) UpdateTTRSettings(ctx context.Context, values TTRSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = values
	return nil
}
