package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/domain"
)

// CachedRepository memoizes the hot read paths of a RubricRepository: an
// in-process LRU first, then an optional shared RemoteCache. The curated
// graph is immutable at runtime so entries only expire by TTL.
type CachedRepository struct {
	domain.RubricRepository

	local  *expirable.LRU[string, []byte]
	remote RemoteCache
	ttl    time.Duration
	log    *logrus.Logger
}

// NewCachedRepository wraps repo. remote may be nil.
func NewCachedRepository(repo domain.RubricRepository, size int, ttl time.Duration, remote RemoteCache, logger *logrus.Logger) *CachedRepository {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedRepository{
		RubricRepository: repo,
		local:            expirable.NewLRU[string, []byte](size, nil, ttl),
		remote:           remote,
		ttl:              ttl,
		log:              logger,
	}
}

// MatchRubrics serves repeated searches from cache.
func (c *CachedRepository) MatchRubrics(ctx context.Context, terms []string, limit int) ([]domain.RubricNode, error) {
	key := "match:" + strconv.Itoa(limit) + ":" + strings.Join(terms, "|")
	var out []domain.RubricNode
	if c.lookup(ctx, key, &out) {
		return out, nil
	}

	out, err := c.RubricRepository.MatchRubrics(ctx, terms, limit)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, out)
	return out, nil
}

// EdgesForRubrics serves repeated rubric selections from cache.
func (c *CachedRepository) EdgesForRubrics(ctx context.Context, rubricIDs []int64) ([]domain.GradedEdge, error) {
	parts := make([]string, len(rubricIDs))
	for i, id := range rubricIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	key := "edges:" + strings.Join(parts, ",")

	var out []domain.GradedEdge
	if c.lookup(ctx, key, &out) {
		return out, nil
	}

	out, err := c.RubricRepository.EdgesForRubrics(ctx, rubricIDs)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, out)
	return out, nil
}

// Chapters serves the chapter list from cache.
func (c *CachedRepository) Chapters(ctx context.Context) ([]string, error) {
	const key = "chapters"
	var out []string
	if c.lookup(ctx, key, &out) {
		return out, nil
	}

	out, err := c.RubricRepository.Chapters(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, out)
	return out, nil
}

// Purge drops every in-process entry.
func (c *CachedRepository) Purge() {
	c.local.Purge()
}

// Len returns the number of in-process entries.
func (c *CachedRepository) Len() int {
	return c.local.Len()
}

func (c *CachedRepository) lookup(ctx context.Context, key string, dest interface{}) bool {
	if raw, ok := c.local.Get(key); ok {
		if err := json.Unmarshal(raw, dest); err == nil {
			return true
		}
	}
	if c.remote == nil {
		return false
	}

	raw, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		// Remote cache failures degrade to a store read.
		c.log.WithError(err).WithField("key", key).Warn("Remote cache lookup failed")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return false
	}
	c.local.Add(key, raw)
	return true
}

func (c *CachedRepository) store(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.local.Add(key, raw)
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, raw, c.ttl); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("Remote cache write failed")
		}
	}
}
