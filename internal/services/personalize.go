package services

import (
	"errors"
	"sync"

	"github.com/docsense/backend/internal/models"
	"github.com/docsense/backend/internal/repository"
	"github.com/sirupsen/logrus"
)

// PatternEstimator recomputes a student's personalization profile from the
// ledger. Each refresh rebuilds all derived fields from scratch.
type PatternEstimator struct {
	queries      models.QueryRepository
	interactions models.InteractionRepository
	patterns     models.LearningPatternRepository
	logger       *logrus.Logger

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewPatternEstimator(
	queries models.QueryRepository,
	interactions models.InteractionRepository,
	patterns models.LearningPatternRepository,
	logger *logrus.Logger,
) *PatternEstimator {
	return &PatternEstimator{
		queries:      queries,
		interactions: interactions,
		patterns:     patterns,
		logger:       logger,
		locks:        make(map[uint]*sync.Mutex),
	}
}

// studentLock returns the mutex serializing recomputes for one student.
// Recomputes for different students run in parallel.
func (e *PatternEstimator) studentLock(studentID uint) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[studentID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[studentID] = lock
	}
	return lock
}

// Recompute derives the student's profile from their query and interaction
// history and upserts it in one statement. A student with no queries gets
// an empty profile back and no row is written. On a failed write the
// previous pattern stays readable; stale beats inconsistent.
func (e *PatternEstimator) Recompute(studentID uint) (*models.LearningPattern, error) {
	lock := e.studentLock(studentID)
	lock.Lock()
	defer lock.Unlock()

	avgLength, totalQueries, err := e.queries.AvgTextLength(studentID)
	if err != nil {
		return nil, err
	}

	if totalQueries == 0 {
		return &models.LearningPattern{StudentID: studentID}, nil
	}

	styleCounts, err := e.queries.StyleCounts(studentID)
	if err != nil {
		return nil, err
	}

	// Counts arrive ordered by frequency, ties by earliest-created style
	// group, so the first row is the deterministic winner.
	preferred := models.StyleUnset
	if len(styleCounts) > 0 {
		preferred = styleCounts[0].RetrievalStyle
	}

	totalInteractions, err := e.interactions.CountByStudent(studentID)
	if err != nil {
		return nil, err
	}

	pattern := &models.LearningPattern{
		StudentID:         studentID,
		PreferredStyle:    preferred,
		AvgQueryLength:    avgLength,
		TotalInteractions: int(totalInteractions),
	}

	if err := e.patterns.Upsert(pattern); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"student_id":         studentID,
		"preferred_style":    preferred,
		"avg_query_length":   avgLength,
		"total_interactions": totalInteractions,
	}).Debug("Learning pattern recomputed")

	return pattern, nil
}

// Current returns the last materialized profile without recomputing.
// Returns nil when the student has never been profiled.
func (e *PatternEstimator) Current(studentID uint) (*models.LearningPattern, error) {
	pattern, err := e.patterns.GetByStudent(studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return pattern, nil
}
