package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docsense/backend/internal/models"
	"github.com/docsense/backend/internal/repository"
	"github.com/docsense/backend/internal/retrieval"
	"gorm.io/gorm"
)

// fakeLedger is an in-memory stand-in for the repository layer. One mutex
// guards every operation so each call behaves like the single atomic
// statement the real store issues.
type fakeLedger struct {
	mu           sync.Mutex
	students     map[uint]*models.Student
	queries      []*models.Query
	interactions []*models.Interaction
	trends       map[string]int
	patterns     map[uint]*models.LearningPattern
	nextID       uint
	clock        time.Time

	// transientFailures makes the next n exposure writes fail transiently
	transientFailures int
	upsertErr         error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		students: make(map[uint]*models.Student),
		trends:   make(map[string]int),
		patterns: make(map[uint]*models.LearningPattern),
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeLedger) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeLedger) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// StudentRepository

func (f *fakeLedger) Create(student *models.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.students {
		if existing.Username == student.Username || existing.Email == student.Email {
			return repository.ErrConflict
		}
	}
	student.ID = f.id()
	student.CreatedAt = f.tick()
	f.students[student.ID] = student
	return nil
}

func (f *fakeLedger) GetByID(id uint) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	student, ok := f.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return student, nil
}

func (f *fakeLedger) GetByUsername(username string) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, student := range f.students {
		if student.Username == username {
			return student, nil
		}
	}
	return nil, repository.ErrNotFound
}

// QueryRepository

func (f *fakeLedger) CreateQuery(tx *gorm.DB, query *models.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createQueryLocked(query)
}

func (f *fakeLedger) createQueryLocked(query *models.Query) error {
	if _, ok := f.students[query.StudentID]; !ok {
		return repository.ErrNotFound
	}
	query.ID = f.id()
	query.CreatedAt = f.tick()
	f.queries = append(f.queries, query)
	return nil
}

func (f *fakeLedger) GetQueryByID(id uint) (*models.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, query := range f.queries {
		if query.ID == id {
			return query, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeLedger) GetByStudent(studentID uint) ([]models.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Query
	for _, query := range f.queries {
		if query.StudentID == studentID {
			out = append(out, *query)
		}
	}
	return out, nil
}

func (f *fakeLedger) LatestID() (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return 0, repository.ErrNotFound
	}
	return f.queries[len(f.queries)-1].ID, nil
}

func (f *fakeLedger) AvgTextLength(studentID uint) (float64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum, count int64
	for _, query := range f.queries {
		if query.StudentID == studentID {
			sum += int64(len(query.QueryText))
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

func (f *fakeLedger) StyleCounts(studentID uint) ([]models.StyleCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byStyle := make(map[string]*models.StyleCount)
	for _, query := range f.queries {
		if query.StudentID != studentID || query.RetrievalStyle == models.StyleUnset {
			continue
		}
		sc, ok := byStyle[query.RetrievalStyle]
		if !ok {
			sc = &models.StyleCount{RetrievalStyle: query.RetrievalStyle, FirstSeen: query.CreatedAt}
			byStyle[query.RetrievalStyle] = sc
		}
		sc.Count++
	}
	var out []models.StyleCount
	for _, sc := range byStyle {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out, nil
}

// InteractionRepository

func (f *fakeLedger) CreateInteraction(tx *gorm.DB, interaction *models.Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createInteractionLocked(interaction)
}

func (f *fakeLedger) createInteractionLocked(interaction *models.Interaction) error {
	found := false
	for _, query := range f.queries {
		if query.ID == interaction.QueryID {
			found = true
			break
		}
	}
	if !found {
		return repository.ErrNotFound
	}
	interaction.ID = f.id()
	interaction.CreatedAt = f.tick()
	f.interactions = append(f.interactions, interaction)
	return nil
}

func (f *fakeLedger) GetByQuery(queryID uint) ([]models.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Interaction
	for _, interaction := range f.interactions {
		if interaction.QueryID == queryID {
			out = append(out, *interaction)
		}
	}
	return out, nil
}

func (f *fakeLedger) SetFeedback(queryID uint, resultID, feedback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.interactions) - 1; i >= 0; i-- {
		if f.interactions[i].QueryID == queryID && f.interactions[i].ResultID == resultID {
			f.interactions[i].Feedback = feedback
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeLedger) SetClicked(queryID uint, resultID string, dwellTime *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.interactions) - 1; i >= 0; i-- {
		if f.interactions[i].QueryID == queryID && f.interactions[i].ResultID == resultID {
			f.interactions[i].Clicked = true
			f.interactions[i].DwellTime = dwellTime
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeLedger) CountByStudent(studentID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owned := make(map[uint]bool)
	for _, query := range f.queries {
		if query.StudentID == studentID {
			owned[query.ID] = true
		}
	}
	var count int64
	for _, interaction := range f.interactions {
		if owned[interaction.QueryID] {
			count++
		}
	}
	return count, nil
}

// QueryTrendRepository

func (f *fakeLedger) Increment(queryText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trends[queryText]++
	return nil
}

func (f *fakeLedger) GetTop(limit int) ([]models.QueryTrend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.QueryTrend
	for text, freq := range f.trends {
		out = append(out, models.QueryTrend{QueryText: text, Frequency: freq})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Frequency > out[j].Frequency })
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// LearningPatternRepository

func (f *fakeLedger) Upsert(pattern *models.LearningPattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	stored := *pattern
	f.patterns[pattern.StudentID] = &stored
	return nil
}

func (f *fakeLedger) GetPatternByStudent(studentID uint) (*models.LearningPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pattern, ok := f.patterns[studentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *pattern
	return &out, nil
}

// ExposureStore

func (f *fakeLedger) RecordQueryAndResults(query *models.Query, interactions []*models.Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transientFailures > 0 {
		f.transientFailures--
		return repository.ErrTransient
	}
	if err := f.createQueryLocked(query); err != nil {
		return err
	}
	for _, interaction := range interactions {
		interaction.QueryID = query.ID
		if err := f.createInteractionLocked(interaction); err != nil {
			return err
		}
	}
	return nil
}

// Interface adapters: the fake stores everything in one struct, the
// components expect the narrow repository views.

type fakeQueryRepo struct{ *fakeLedger }

func (f fakeQueryRepo) Create(tx *gorm.DB, q *models.Query) error { return f.CreateQuery(tx, q) }
func (f fakeQueryRepo) GetByID(id uint) (*models.Query, error)    { return f.GetQueryByID(id) }

type fakeInteractionRepo struct{ *fakeLedger }

func (f fakeInteractionRepo) Create(tx *gorm.DB, i *models.Interaction) error {
	return f.CreateInteraction(tx, i)
}

type fakePatternRepo struct{ *fakeLedger }

func (f fakePatternRepo) GetByStudent(id uint) (*models.LearningPattern, error) {
	return f.GetPatternByStudent(id)
}

// fakeSearcher returns a fixed candidate list
type fakeSearcher struct {
	results []retrieval.RankedResult
	err     error

	lastQuery string
	lastStyle string
}

func (s *fakeSearcher) Search(ctx context.Context, queryText, styleHint string) ([]retrieval.RankedResult, error) {
	s.lastQuery = queryText
	s.lastStyle = styleHint
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}
