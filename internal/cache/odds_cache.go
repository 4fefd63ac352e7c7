// Package cache provides a redis-backed read cache in front of the odds store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/models"
	"github.com/yourusername/grade-market/internal/repository"
)

// Config holds Redis cache configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// OddsCache caches each course's ordered odds list under odds:{course_id}
type OddsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

// NewOddsCache creates a new Redis odds cache
func NewOddsCache(cfg Config, logger *logrus.Logger) *OddsCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &OddsCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.WithField("component", "odds_cache"),
	}
}

func key(courseID uuid.UUID) string {
	return fmt.Sprintf("odds:%s", courseID)
}

// Get returns cached odds; found is false on a miss
func (c *OddsCache) Get(ctx context.Context, courseID uuid.UUID) (entries []models.OddsEntry, found bool, err error) {
	data, err := c.client.Get(ctx, key(courseID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get from Redis: %w", err)
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal odds: %w", err)
	}
	for i := range entries {
		entries[i].CourseID = courseID
	}
	return entries, true, nil
}

// Set stores a course's odds with the configured TTL
func (c *OddsCache) Set(ctx context.Context, courseID uuid.UUID, entries []models.OddsEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal odds: %w", err)
	}
	if err := c.client.Set(ctx, key(courseID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in Redis: %w", err)
	}
	return nil
}

// Invalidate drops a course's cached odds
func (c *OddsCache) Invalidate(ctx context.Context, courseID uuid.UUID) {
	if err := c.client.Del(ctx, key(courseID)).Err(); err != nil {
		c.logger.WithError(err).WithField("course_id", courseID).Warn("Failed to invalidate cached odds")
	}
}

// Ping checks Redis connectivity
func (c *OddsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *OddsCache) Close() error {
	return c.client.Close()
}

// Wrap decorates the odds store and every write path that touches odds
// (placement and resolution) so cached lists are invalidated after each write.
func Wrap(repos *repository.Repositories, c *OddsCache) *repository.Repositories {
	return &repository.Repositories{
		Users:   repos.Users,
		Courses: &cachedCourses{CourseRepository: repos.Courses, cache: c},
		Odds:    &CachedOddsRepository{inner: repos.Odds, cache: c},
		Bets:    repos.Bets,
		Ledger:  &cachedLedger{inner: repos.Ledger, cache: c},
	}
}

// CachedOddsRepository serves List from Redis and invalidates on writes.
// Redis failures degrade to the underlying store.
type CachedOddsRepository struct {
	inner repository.OddsRepository
	cache *OddsCache
}

// List returns odds ordered by ascending threshold
func (r *CachedOddsRepository) List(ctx context.Context, courseID uuid.UUID) ([]models.OddsEntry, error) {
	entries, found, err := r.cache.Get(ctx, courseID)
	if err != nil {
		r.cache.logger.WithError(err).Warn("Odds cache read failed")
	}
	if found {
		return entries, nil
	}

	entries, err = r.inner.List(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, courseID, entries); err != nil {
		r.cache.logger.WithError(err).Warn("Odds cache write failed")
	}
	return entries, nil
}

// Upsert writes probabilities and invalidates the cached list
func (r *CachedOddsRepository) Upsert(ctx context.Context, courseID uuid.UUID, buckets []models.Bucket) error {
	defer r.cache.Invalidate(ctx, courseID)
	return r.inner.Upsert(ctx, courseID, buckets)
}

// IncrementShares adds a backing and invalidates the cached list
func (r *CachedOddsRepository) IncrementShares(ctx context.Context, courseID uuid.UUID, threshold float64) error {
	defer r.cache.Invalidate(ctx, courseID)
	return r.inner.IncrementShares(ctx, courseID, threshold)
}

type cachedCourses struct {
	repository.CourseRepository
	cache *OddsCache
}

func (c *cachedCourses) Resolve(ctx context.Context, courseID uuid.UUID, grade float64, at time.Time) (bool, error) {
	defer c.cache.Invalidate(ctx, courseID)
	return c.CourseRepository.Resolve(ctx, courseID, grade, at)
}

type cachedLedger struct {
	inner repository.PlacementLedger
	cache *OddsCache
}

func (l *cachedLedger) RecordPlacement(ctx context.Context, bet *models.Bet) error {
	defer l.cache.Invalidate(ctx, bet.CourseID)
	return l.inner.RecordPlacement(ctx, bet)
}
