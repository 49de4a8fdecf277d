package services

import (
	"strings"

	"github.com/docsense/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// TrendTracker maintains global popularity of query text independent of
// the student who asked.
type TrendTracker struct {
	trends models.QueryTrendRepository
	logger *logrus.Logger
}

func NewTrendTracker(trends models.QueryTrendRepository, logger *logrus.Logger) *TrendTracker {
	return &TrendTracker{
		trends: trends,
		logger: logger,
	}
}

// Bump increments the lifetime counter for the normalized form of text.
// The underlying write is a single upsert, safe under concurrent callers.
func (t *TrendTracker) Bump(text string) error {
	normalized := NormalizeQuery(text)
	if normalized == "" {
		return nil
	}
	return t.trends.Increment(normalized)
}

// Top returns the most popular normalized queries
func (t *TrendTracker) Top(limit int) ([]models.QueryTrend, error) {
	return t.trends.GetTop(limit)
}

// NormalizeQuery lowercases, trims and collapses whitespace so the same
// question phrased with different spacing or casing counts as one key.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
