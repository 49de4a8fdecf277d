package models

// GORM models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Retrieval styles a student can ask for (or be defaulted into).
const (
	StyleDetailed = "detailed"
	StyleShort    = "short"
	StyleBulleted = "bulleted"
	StyleVisual   = "visual"
	StyleUnset    = ""
)

// Feedback values on a surfaced result.
const (
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
	FeedbackUnset      = ""
)

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Student represents a registered learner
type Student struct {
	BaseModel
	Username string `json:"username" gorm:"uniqueIndex;not null"`
	FullName string `json:"full_name"`
	Email    string `json:"email" gorm:"uniqueIndex;not null"`

	// Associations
	Queries []Query `json:"queries,omitempty" gorm:"foreignKey:StudentID"`
}

// Query represents one submitted question
type Query struct {
	BaseModel
	StudentID      uint      `json:"student_id" gorm:"not null;index"`
	QueryText      string    `json:"query_text" gorm:"not null"`
	RetrievalStyle string    `json:"retrieval_style" gorm:"check:retrieval_style IN ('detailed','short','bulleted','visual','')"`
	Timestamp      time.Time `json:"timestamp" gorm:"default:NOW()"`

	// Associations
	Student      Student       `json:"-" gorm:"foreignKey:StudentID"`
	Interactions []Interaction `json:"interactions,omitempty" gorm:"foreignKey:QueryID"`
}

// Interaction represents one exposure of a retrieved result to a student
type Interaction struct {
	BaseModel
	QueryID   uint   `json:"query_id" gorm:"not null;index:idx_interactions_query_result"`
	ResultID  string `json:"result_id" gorm:"not null;index:idx_interactions_query_result"`
	Clicked   bool   `json:"clicked" gorm:"default:false"`
	DwellTime *int64 `json:"dwell_time_ms"`
	Feedback  string `json:"feedback" gorm:"check:feedback IN ('thumbs_up','thumbs_down','')"`

	// Associations
	Query Query `json:"-" gorm:"foreignKey:QueryID"`
}

// QueryTrend is the global popularity counter for normalized query text
type QueryTrend struct {
	BaseModel
	QueryText string `json:"query_text" gorm:"uniqueIndex;not null"`
	Frequency int    `json:"frequency" gorm:"default:1"`
}

// LearningPattern is a student's derived personalization profile.
// Fully recomputed on refresh, never patched field by field.
type LearningPattern struct {
	BaseModel
	StudentID         uint    `json:"student_id" gorm:"uniqueIndex;not null"`
	PreferredStyle    string  `json:"preferred_style"`
	AvgQueryLength    float64 `json:"avg_query_length"`
	TotalInteractions int     `json:"total_interactions"`
}

// StyleCount is a per-style occurrence row produced by pattern aggregation
type StyleCount struct {
	RetrievalStyle string
	Count          int
	FirstSeen      time.Time
}

// Database interfaces for repository pattern
type StudentRepository interface {
	Create(student *Student) error
	GetByID(id uint) (*Student, error)
	GetByUsername(username string) (*Student, error)
}

type QueryRepository interface {
	Create(tx *gorm.DB, query *Query) error
	GetByID(id uint) (*Query, error)
	GetByStudent(studentID uint) ([]Query, error)
	LatestID() (uint, error)
	AvgTextLength(studentID uint) (float64, int64, error)
	StyleCounts(studentID uint) ([]StyleCount, error)
}

type InteractionRepository interface {
	Create(tx *gorm.DB, interaction *Interaction) error
	GetByQuery(queryID uint) ([]Interaction, error)
	SetFeedback(queryID uint, resultID, feedback string) error
	SetClicked(queryID uint, resultID string, dwellTime *int64) error
	CountByStudent(studentID uint) (int64, error)
}

type QueryTrendRepository interface {
	Increment(queryText string) error
	GetTop(limit int) ([]QueryTrend, error)
}

type LearningPatternRepository interface {
	Upsert(pattern *LearningPattern) error
	GetByStudent(studentID uint) (*LearningPattern, error)
}

// TableName methods for custom table names
func (Student) TableName() string         { return "students" }
func (Query) TableName() string           { return "queries" }
func (Interaction) TableName() string     { return "interactions" }
func (QueryTrend) TableName() string      { return "query_trends" }
func (LearningPattern) TableName() string { return "learning_patterns" }

// Model validation methods
func (s *Student) Validate() error {
	if s.Username == "" {
		return fmt.Errorf("username is required")
	}
	if s.Email == "" {
		return fmt.Errorf("email is required")
	}
	return nil
}

func (q *Query) Validate() error {
	if q.StudentID == 0 {
		return fmt.Errorf("student ID is required")
	}
	if q.QueryText == "" {
		return fmt.Errorf("query text is required")
	}
	if !ValidStyle(q.RetrievalStyle) {
		return fmt.Errorf("invalid retrieval style: %s", q.RetrievalStyle)
	}
	return nil
}

func (i *Interaction) Validate() error {
	if i.QueryID == 0 {
		return fmt.Errorf("query ID is required")
	}
	if i.ResultID == "" {
		return fmt.Errorf("result ID is required")
	}
	if !ValidFeedback(i.Feedback) {
		return fmt.Errorf("invalid feedback: %s", i.Feedback)
	}
	return nil
}

// ValidStyle reports whether s is a known retrieval style or unset
func ValidStyle(s string) bool {
	switch s {
	case StyleDetailed, StyleShort, StyleBulleted, StyleVisual, StyleUnset:
		return true
	}
	return false
}

// ValidFeedback reports whether f is a known feedback value or unset
func ValidFeedback(f string) bool {
	switch f {
	case FeedbackThumbsUp, FeedbackThumbsDown, FeedbackUnset:
		return true
	}
	return false
}

// GORM hooks
func (s *Student) BeforeCreate(tx *gorm.DB) error {
	return s.Validate()
}

func (q *Query) BeforeCreate(tx *gorm.DB) error {
	return q.Validate()
}

func (i *Interaction) BeforeCreate(tx *gorm.DB) error {
	return i.Validate()
}
