package repository

import (
	"time"

	"github.com/docsense/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StudentRepositoryImpl implements StudentRepository
type StudentRepositoryImpl struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) models.StudentRepository {
	return &StudentRepositoryImpl{db: db}
}

func (r *StudentRepositoryImpl) Create(student *models.Student) error {
	return mapError(r.db.Create(student).Error)
}

func (r *StudentRepositoryImpl) GetByID(id uint) (*models.Student, error) {
	var student models.Student
	err := r.db.First(&student, id).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &student, nil
}

func (r *StudentRepositoryImpl) GetByUsername(username string) (*models.Student, error) {
	var student models.Student
	err := r.db.Where("username = ?", username).First(&student).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &student, nil
}

// QueryRepositoryImpl implements QueryRepository
type QueryRepositoryImpl struct {
	db *gorm.DB
}

func NewQueryRepository(db *gorm.DB) models.QueryRepository {
	return &QueryRepositoryImpl{db: db}
}

// Create inserts a query after verifying its student exists. A missing
// parent aborts the write; no orphan row is created. Runs inside tx when
// one is supplied.
func (r *QueryRepositoryImpl) Create(tx *gorm.DB, query *models.Query) error {
	db := tx
	if db == nil {
		db = r.db
	}

	var count int64
	if err := db.Model(&models.Student{}).Where("id = ?", query.StudentID).Count(&count).Error; err != nil {
		return mapError(err)
	}
	if count == 0 {
		return ErrNotFound
	}

	if query.Timestamp.IsZero() {
		query.Timestamp = time.Now()
	}
	return mapError(db.Create(query).Error)
}

func (r *QueryRepositoryImpl) GetByID(id uint) (*models.Query, error) {
	var query models.Query
	err := r.db.Preload("Interactions").First(&query, id).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &query, nil
}

func (r *QueryRepositoryImpl) GetByStudent(studentID uint) ([]models.Query, error) {
	var queries []models.Query
	err := r.db.Where("student_id = ?", studentID).
		Order("created_at").
		Find(&queries).Error
	return queries, mapError(err)
}

// LatestID returns the most recently created query id. Racy across
// sessions; single-session convenience only.
func (r *QueryRepositoryImpl) LatestID() (uint, error) {
	var query models.Query
	err := r.db.Order("id DESC").First(&query).Error
	if err != nil {
		return 0, mapError(err)
	}
	return query.ID, nil
}

// AvgTextLength returns the mean query text length and query count for a
// student in one aggregation pass.
func (r *QueryRepositoryImpl) AvgTextLength(studentID uint) (float64, int64, error) {
	var row struct {
		Avg   *float64
		Total int64
	}
	err := r.db.Model(&models.Query{}).
		Select("AVG(LENGTH(query_text)) AS avg, COUNT(*) AS total").
		Where("student_id = ?", studentID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, mapError(err)
	}
	if row.Avg == nil {
		return 0, row.Total, nil
	}
	return *row.Avg, row.Total, nil
}

// StyleCounts returns per-style occurrence counts for a student, most
// frequent first. Ties order by earliest created style group so the
// winner is deterministic.
func (r *QueryRepositoryImpl) StyleCounts(studentID uint) ([]models.StyleCount, error) {
	var counts []models.StyleCount
	err := r.db.Model(&models.Query{}).
		Select("retrieval_style, COUNT(*) AS count, MIN(created_at) AS first_seen").
		Where("student_id = ? AND retrieval_style <> ''", studentID).
		Group("retrieval_style").
		Order("count DESC, first_seen ASC").
		Scan(&counts).Error
	return counts, mapError(err)
}

// InteractionRepositoryImpl implements InteractionRepository
type InteractionRepositoryImpl struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) models.InteractionRepository {
	return &InteractionRepositoryImpl{db: db}
}

// Create inserts an interaction after verifying its query exists. Repeated
// impressions for the same (query, result) pair each get their own row.
func (r *InteractionRepositoryImpl) Create(tx *gorm.DB, interaction *models.Interaction) error {
	db := tx
	if db == nil {
		db = r.db
	}

	var count int64
	if err := db.Model(&models.Query{}).Where("id = ?", interaction.QueryID).Count(&count).Error; err != nil {
		return mapError(err)
	}
	if count == 0 {
		return ErrNotFound
	}

	return mapError(db.Create(interaction).Error)
}

func (r *InteractionRepositoryImpl) GetByQuery(queryID uint) ([]models.Interaction, error) {
	var interactions []models.Interaction
	err := r.db.Where("query_id = ?", queryID).
		Order("created_at").
		Find(&interactions).Error
	return interactions, mapError(err)
}

// SetFeedback updates the most recently created interaction matching the
// (query, result) pair. Older impressions for the same pair are untouched.
func (r *InteractionRepositoryImpl) SetFeedback(queryID uint, resultID, feedback string) error {
	result := r.db.Exec(`
		UPDATE interactions
		SET feedback = ?, updated_at = NOW()
		WHERE id = (
			SELECT id FROM interactions
			WHERE query_id = ? AND result_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`, feedback, queryID, resultID)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetClicked marks the most recent matching interaction as clicked,
// optionally recording dwell time.
func (r *InteractionRepositoryImpl) SetClicked(queryID uint, resultID string, dwellTime *int64) error {
	result := r.db.Exec(`
		UPDATE interactions
		SET clicked = TRUE, dwell_time = ?, updated_at = NOW()
		WHERE id = (
			SELECT id FROM interactions
			WHERE query_id = ? AND result_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`, dwellTime, queryID, resultID)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InteractionRepositoryImpl) CountByStudent(studentID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Interaction{}).
		Joins("JOIN queries ON queries.id = interactions.query_id").
		Where("queries.student_id = ?", studentID).
		Count(&count).Error
	return count, mapError(err)
}

// QueryTrendRepositoryImpl implements QueryTrendRepository
type QueryTrendRepositoryImpl struct {
	db *gorm.DB
}

func NewQueryTrendRepository(db *gorm.DB) models.QueryTrendRepository {
	return &QueryTrendRepositoryImpl{db: db}
}

// Increment bumps the lifetime counter for a normalized query text. Single
// upsert statement; concurrent callers on the same text never lose updates.
func (r *QueryTrendRepositoryImpl) Increment(queryText string) error {
	return mapError(r.db.Exec(`
		INSERT INTO query_trends (query_text, frequency, created_at, updated_at)
		VALUES (?, 1, NOW(), NOW())
		ON CONFLICT (query_text)
		DO UPDATE SET
			frequency = query_trends.frequency + 1,
			updated_at = NOW()
	`, queryText).Error)
}

func (r *QueryTrendRepositoryImpl) GetTop(limit int) ([]models.QueryTrend, error) {
	var trends []models.QueryTrend
	err := r.db.Order("frequency DESC").
		Limit(limit).
		Find(&trends).Error
	return trends, mapError(err)
}

// LearningPatternRepositoryImpl implements LearningPatternRepository
type LearningPatternRepositoryImpl struct {
	db *gorm.DB
}

func NewLearningPatternRepository(db *gorm.DB) models.LearningPatternRepository {
	return &LearningPatternRepositoryImpl{db: db}
}

// Upsert overwrites all derived fields in one statement so a reader never
// observes a half-updated pattern.
func (r *LearningPatternRepositoryImpl) Upsert(pattern *models.LearningPattern) error {
	return mapError(r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"preferred_style", "avg_query_length", "total_interactions", "updated_at",
		}),
	}).Create(pattern).Error)
}

func (r *LearningPatternRepositoryImpl) GetByStudent(studentID uint) (*models.LearningPattern, error) {
	var pattern models.LearningPattern
	err := r.db.Where("student_id = ?", studentID).First(&pattern).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &pattern, nil
}

// Ledger bundles all repositories over one explicitly owned storage handle
type Ledger struct {
	db *gorm.DB

	Student         models.StudentRepository
	Query           models.QueryRepository
	Interaction     models.InteractionRepository
	QueryTrend      models.QueryTrendRepository
	LearningPattern models.LearningPatternRepository
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		db:              db,
		Student:         NewStudentRepository(db),
		Query:           NewQueryRepository(db),
		Interaction:     NewInteractionRepository(db),
		QueryTrend:      NewQueryTrendRepository(db),
		LearningPattern: NewLearningPatternRepository(db),
	}
}

// WithTx runs fn inside one request-scoped transaction. The transaction
// rolls back fully on error; partial writes are never left behind.
func (l *Ledger) WithTx(fn func(tx *gorm.DB) error) error {
	return mapError(l.db.Transaction(fn))
}

// RecordQueryAndResults persists a query and the interactions for its
// surfaced results as one atomic unit: either all rows are durable or
// none are. Interactions get their QueryID filled from the created query.
func (l *Ledger) RecordQueryAndResults(query *models.Query, interactions []*models.Interaction) error {
	return l.WithTx(func(tx *gorm.DB) error {
		queries := &QueryRepositoryImpl{db: tx}
		if err := queries.Create(tx, query); err != nil {
			return err
		}

		exposures := &InteractionRepositoryImpl{db: tx}
		for _, interaction := range interactions {
			interaction.QueryID = query.ID
			if err := exposures.Create(tx, interaction); err != nil {
				return err
			}
		}
		return nil
	})
}

// LatestQueryID is a single-session convenience for callers that do not
// thread query ids through the UI layer. Racy across sessions.
func (l *Ledger) LatestQueryID() (uint, error) {
	return l.Query.LatestID()
}
