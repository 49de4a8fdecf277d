package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docsense/backend/internal/models"
	"github.com/docsense/backend/internal/repository"
	"github.com/docsense/backend/internal/retrieval"
	"github.com/sirupsen/logrus"
)

// ExposureStore is what the orchestrator needs from the ledger: one atomic
// write of a query plus the interactions for its surfaced results.
type ExposureStore interface {
	RecordQueryAndResults(query *models.Query, interactions []*models.Interaction) error
}

// AskOutcome is what one handled query returns to the presentation layer
type AskOutcome struct {
	QueryID uint
	Results []retrieval.RankedResult
	// Pattern is the student's refreshed profile, nil when personalization
	// degraded to no hint for this request.
	Pattern *models.LearningPattern
}

// RetrievalOrchestrator sequences ledger writes, trend tracking and pattern
// recompute around a call to the retrieval backend. It owns no retrieval
// logic itself.
type RetrievalOrchestrator struct {
	students  models.StudentRepository
	store     ExposureStore
	searcher  retrieval.Searcher
	trends    *TrendTracker
	estimator *PatternEstimator
	logger    *logrus.Logger
}

func NewRetrievalOrchestrator(
	students models.StudentRepository,
	store ExposureStore,
	searcher retrieval.Searcher,
	trends *TrendTracker,
	estimator *PatternEstimator,
	logger *logrus.Logger,
) *RetrievalOrchestrator {
	return &RetrievalOrchestrator{
		students:  students,
		store:     store,
		searcher:  searcher,
		trends:    trends,
		estimator: estimator,
		logger:    logger,
	}
}

const (
	storeMaxRetries = 3
	storeRetryDelay = 100 * time.Millisecond
)

// Handle processes one incoming query. It resolves the student, searches
// the retrieval backend, persists the query and its exposures atomically,
// bumps the trend counter and refreshes the student's profile. The search
// happens before the transaction opens so no locks are held during it.
func (o *RetrievalOrchestrator) Handle(ctx context.Context, studentID uint, queryText, style string) (*AskOutcome, error) {
	student, err := o.students.GetByID(studentID)
	if err != nil {
		return nil, fmt.Errorf("resolve student: %w", err)
	}

	if !models.ValidStyle(style) {
		return nil, fmt.Errorf("invalid retrieval style: %s", style)
	}

	// Unset style falls back to the student's current preference as a hint
	if style == models.StyleUnset {
		if current, err := o.estimator.Current(student.ID); err == nil && current != nil {
			style = current.PreferredStyle
		}
	}

	results, err := o.searcher.Search(ctx, queryText, style)
	if err != nil {
		return nil, fmt.Errorf("retrieval search: %w", err)
	}

	query := &models.Query{
		StudentID:      student.ID,
		QueryText:      queryText,
		RetrievalStyle: style,
		Timestamp:      time.Now(),
	}

	interactions := make([]*models.Interaction, 0, len(results))
	for _, result := range results {
		interactions = append(interactions, &models.Interaction{
			ResultID: result.ResultID,
		})
	}

	if err := o.writeWithRetry(ctx, query, interactions); err != nil {
		return nil, fmt.Errorf("record exposure: %w", err)
	}

	if err := o.trends.Bump(queryText); err != nil {
		o.logger.WithError(err).WithField("query_id", query.ID).Warn("Failed to bump query trend")
	}

	outcome := &AskOutcome{
		QueryID: query.ID,
		Results: results,
	}

	// Personalization is best effort; a failed recompute degrades to no
	// hint rather than failing the answer.
	pattern, err := o.estimator.Recompute(student.ID)
	if err != nil {
		o.logger.WithError(err).WithField("student_id", student.ID).Warn("Learning pattern recompute failed")
		return outcome, nil
	}
	outcome.Pattern = pattern

	return outcome, nil
}

// writeWithRetry reattempts the whole logical transaction on transient
// store failures. Statement-level replay never happens; each attempt is
// the full atomic unit.
func (o *RetrievalOrchestrator) writeWithRetry(ctx context.Context, query *models.Query, interactions []*models.Interaction) error {
	var err error
	for attempt := 0; attempt <= storeMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(storeRetryDelay * time.Duration(attempt)):
			}
		}

		err = o.store.RecordQueryAndResults(query, interactions)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrTransient) {
			return err
		}

		o.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Retrying ledger write")
	}
	return fmt.Errorf("ledger write failed after %d retries: %w", storeMaxRetries, err)
}
