package model

import "time"

// ExportResult represents the result of writing one snapshot
type ExportResult struct {
	Type        string    `json:"type"` // "json", "csv"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Stargazer is a user who starred a repository inside the trailing window
type Stargazer struct {
	Repo      string    `json:"repo"`
	Login     string    `json:"login"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	Email     string    `json:"email"`
	Location  string    `json:"location"`
	HTMLURL   string    `json:"html_url"`
	Followers int       `json:"followers"`
	StarredAt time.Time `json:"starred_at"`
}

// StarWindow is the count of recent stars for one repository
type StarWindow struct {
	Repo  string  `json:"repo"`
	Stars int     `json:"stars"`
	Days  float64 `json:"days"`
}

// PerDay returns the average star rate across the window
func (w StarWindow) PerDay() float64 {
	if w.Days <= 0 {
		return 0
	}
	return float64(w.Stars) / w.Days
}
