package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY CACHE
// Кэш снимков допуска: Get/Set на пару (ученик, экзамен), инвалидация всех
// ключей ученика по событию повышения пояса. Кэш не является источником
// истины - промах всегда безопасен.
// ══════════════════════════════════════════════════════════════════════════════

// EligibilityCache caches eligibility verdicts with a short TTL.
// It implements both the query-side cache and the event-side invalidator.
type EligibilityCache struct {
	cache *Cache
}

// NewEligibilityCache creates a new EligibilityCache.
func NewEligibilityCache(cache *Cache) *EligibilityCache {
	return &EligibilityCache{cache: cache}
}

// Get возвращает закэшированный снимок допуска, если он есть.
func (c *EligibilityCache) Get(ctx context.Context, studentID shared.StudentID, examID shared.ExamID) (*exam.EligibilityResult, bool, error) {
	var result exam.EligibilityResult

	err := c.cache.Get(ctx, EligibilityKey(string(studentID), string(examID)), &result)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("eligibility cache get: %w", err)
	}

	return &result, true, nil
}

// Set сохраняет снимок допуска с коротким TTL.
func (c *EligibilityCache) Set(ctx context.Context, studentID shared.StudentID, examID shared.ExamID, result exam.EligibilityResult) error {
	return c.cache.Set(ctx, EligibilityKey(string(studentID), string(examID)), result, TTLEligibility)
}

// InvalidateStudent сбрасывает все снимки допуска ученика (по всем экзаменам).
// Вызывается после повышения пояса: старые вердикты устаревают мгновенно.
func (c *EligibilityCache) InvalidateStudent(ctx context.Context, studentID shared.StudentID) error {
	return c.cache.DeleteByPattern(ctx, PrefixEligibility+string(studentID)+":*")
}
