package models

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	FullName string `json:"full_name"`
	Email    string `json:"email" binding:"required,email"`
}

type AskRequest struct {
	StudentID uint   `json:"student_id" binding:"required"`
	Query     string `json:"query" binding:"required"`
	Style     string `json:"style"`
}

type AskResponse struct {
	QueryID      uint             `json:"query_id"`
	Results      []RankedResult   `json:"results"`
	Total        int              `json:"total"`
	Pattern      *LearningPattern `json:"pattern,omitempty"`
	ResponseTime int              `json:"response_time_ms"`
}

type RankedResult struct {
	ResultID string  `json:"result_id"`
	Modality string  `json:"modality"`
	Score    float64 `json:"score"`
	Content  string  `json:"content,omitempty"`
}

type FeedbackRequest struct {
	// QueryID may be omitted by single-session callers; the latest query
	// is assumed then.
	QueryID  uint   `json:"query_id"`
	ResultID string `json:"result_id" binding:"required"`
	Feedback string `json:"feedback" binding:"required"`
}

type ClickRequest struct {
	QueryID     uint   `json:"query_id"`
	ResultID    string `json:"result_id" binding:"required"`
	DwellTimeMs *int64 `json:"dwell_time_ms"`
}
