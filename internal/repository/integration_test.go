//go:build integration

package repository

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/docsense/backend/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL required for integration tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Query{},
		&models.Interaction{},
		&models.QueryTrend{},
		&models.LearningPattern{},
	))
	return db
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func testStudent(prefix string) *models.Student {
	name := uniqueName(prefix)
	return &models.Student{
		Username: name,
		Email:    name + "@example.com",
	}
}

func TestIntegration_DuplicateStudentConflicts(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)

	first := testStudent("alice")
	require.NoError(t, ledger.Student.Create(first))

	dup := &models.Student{Username: first.Username, Email: uniqueName("alice") + "@example.com"}
	err := ledger.Student.Create(dup)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestIntegration_QueryForUnknownStudentWritesNothing(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)

	query := &models.Query{
		StudentID:      99999999,
		QueryText:      "what is a derivative?",
		RetrievalStyle: models.StyleShort,
	}
	err := ledger.Query.Create(nil, query)
	assert.ErrorIs(t, err, ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Query{}).Where("student_id = ?", 99999999).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIntegration_RecordQueryAndResultsAtomic(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)

	student := testStudent("bob")
	require.NoError(t, ledger.Student.Create(student))

	query := &models.Query{
		StudentID:      student.ID,
		QueryText:      "eigenvalues of a symmetric matrix",
		RetrievalStyle: models.StyleDetailed,
	}
	interactions := []*models.Interaction{
		{ResultID: "chunk-1"},
		{ResultID: "fig-2"},
	}
	require.NoError(t, ledger.RecordQueryAndResults(query, interactions))

	stored, err := ledger.Interaction.GetByQuery(query.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	for _, interaction := range stored {
		assert.Equal(t, query.ID, interaction.QueryID)
	}
}

func TestIntegration_FeedbackWithoutInteraction(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)

	student := testStudent("carol")
	require.NoError(t, ledger.Student.Create(student))

	query := &models.Query{StudentID: student.ID, QueryText: "laplace transform"}
	require.NoError(t, ledger.Query.Create(nil, query))

	err := ledger.Interaction.SetFeedback(query.ID, "missing-result", models.FeedbackThumbsUp)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIntegration_ConcurrentTrendIncrements(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)

	queryText := uniqueName("concurrent trend")
	const workers = 16

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ledger.QueryTrend.Increment(queryText)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var trend models.QueryTrend
	require.NoError(t, db.Where("query_text = ?", queryText).First(&trend).Error)
	assert.Equal(t, workers, trend.Frequency)
}

func TestIntegration_PatternUpsertOverwrites(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db)

	student := testStudent("dave")
	require.NoError(t, ledger.Student.Create(student))

	require.NoError(t, ledger.LearningPattern.Upsert(&models.LearningPattern{
		StudentID:      student.ID,
		PreferredStyle: models.StyleShort,
		AvgQueryLength: 12,
	}))
	require.NoError(t, ledger.LearningPattern.Upsert(&models.LearningPattern{
		StudentID:         student.ID,
		PreferredStyle:    models.StyleBulleted,
		AvgQueryLength:    18.5,
		TotalInteractions: 4,
	}))

	pattern, err := ledger.LearningPattern.GetByStudent(student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StyleBulleted, pattern.PreferredStyle)
	assert.Equal(t, 18.5, pattern.AvgQueryLength)
	assert.Equal(t, 4, pattern.TotalInteractions)

	var count int64
	require.NoError(t, db.Model(&models.LearningPattern{}).Where("student_id = ?", student.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
