package models

import (
	"time"

	types "github.com/Shyp/go-types"
)

// Engagement score weights. Duration contributes up to 60 points, capped at
// five minutes; each interaction flag adds a fixed bonus; the total is capped
// at 100.
const (
	engagementDurationCap    = 300
	engagementDurationPoints = 60
	scrollBonus              = 15
	applyClickBonus          = 15
	companyLinkBonus         = 5
	downloadBonus            = 5
)

// A JobView records one student's engagement with a job within one session.
// A revisit in the same session merges into the existing row: duration only
// ever grows, interaction flags only ever turn on. Views are analytics data;
// nothing reads them back to gate behavior.
type JobView struct {
	ID           types.PrefixUUID `json:"id"`
	JobID        types.PrefixUUID `json:"job_id"`
	StudentID    types.PrefixUUID `json:"student_id"`
	DepartmentID types.PrefixUUID `json:"department_id"`
	SessionID    string           `json:"session_id"`
	ViewType     string           `json:"view_type"`

	DurationSeconds int64 `json:"duration_seconds"`
	VisitCount      int64 `json:"visit_count"`

	ScrolledToBottom   bool `json:"scrolled_to_bottom"`
	ClickedApply       bool `json:"clicked_apply"`
	ClickedCompanyLink bool `json:"clicked_company_link"`
	DownloadedDocs     bool `json:"downloaded_documents"`

	Referrer string `json:"referrer"`
	Source   string `json:"source"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EngagementScore computes the 0-100 heuristic used by the analytics
// aggregator. Duration is weighted linearly up to a five minute cap, then
// each interaction adds a fixed bonus.
func (v *JobView) EngagementScore() float64 {
	d := v.DurationSeconds
	if d > engagementDurationCap {
		d = engagementDurationCap
	}
	score := float64(d) / engagementDurationCap * engagementDurationPoints
	if v.ScrolledToBottom {
		score += scrollBonus
	}
	if v.ClickedApply {
		score += applyClickBonus
	}
	if v.ClickedCompanyLink {
		score += companyLinkBonus
	}
	if v.DownloadedDocs {
		score += downloadBonus
	}
	if score > 100 {
		score = 100
	}
	return score
}
