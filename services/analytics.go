package services

import (
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"

	"placementd/models"
	"placementd/models/job_applications"
	"placementd/models/job_views"
	"placementd/models/jobs"
)

// JobAnalytics is the staff dashboard summary for one job. Everything here
// is derived by aggregating application and view rows on demand; it is never
// stored and never authoritative.
type JobAnalytics struct {
	JobID types.PrefixUUID `json:"job_id"`

	TotalViews        int64 `json:"total_views"`
	TotalApplications int64 `json:"total_applications"`

	Applied    int64 `json:"applied"`
	NotApplied int64 `json:"not_applied"`
	Pending    int64 `json:"pending"`

	// ApplicationRate is applied / total application records.
	ApplicationRate float64 `json:"application_rate"`

	Departments []DepartmentAnalytics `json:"departments"`

	AvgViewDuration float64 `json:"avg_view_duration_seconds"`
	ScrollRate      float64 `json:"scroll_completion_rate"`
	ApplyClickRate  float64 `json:"apply_click_rate"`

	// AvgEngagement is the mean 0-100 engagement score across view rows.
	AvgEngagement float64 `json:"avg_engagement_score"`
}

// DepartmentAnalytics is one department's slice of a job's applications.
type DepartmentAnalytics struct {
	DepartmentID     types.PrefixUUID `json:"department_id"`
	Total            int64            `json:"total"`
	Applied          int64            `json:"applied"`
	NotApplied       int64            `json:"not_applied"`
	Pending          int64            `json:"pending"`
	ApplicationRate  float64          `json:"application_rate"`
	AvgResponseHours *float64         `json:"avg_response_hours"`
}

// engagementSampleLimit caps how many view rows one analytics call scores in
// Go. Past the cap the average is computed over the newest rows only.
const engagementSampleLimit = 5000

// Analytics aggregates department-wise application counts and view
// engagement for the job.
func Analytics(jobID types.PrefixUUID) (*JobAnalytics, error) {
	start := time.Now()
	job, err := jobs.GetRetry(jobID, 3)
	if err != nil {
		return nil, err
	}

	out := &JobAnalytics{JobID: job.ID}

	byStatus, err := job_applications.CountByStatus(job.ID)
	if err != nil {
		return nil, err
	}
	out.Applied = byStatus[models.StatusApplied]
	out.NotApplied = byStatus[models.StatusNotApplied]
	out.Pending = byStatus[models.StatusPendingResponse]
	total := out.Applied + out.NotApplied + out.Pending
	if total > 0 {
		out.ApplicationRate = float64(out.Applied) / float64(total)
	}

	breakdown, err := job_applications.GetDepartmentBreakdown(job.ID)
	if err != nil {
		return nil, err
	}
	for _, b := range breakdown {
		da := DepartmentAnalytics{
			DepartmentID:     b.DepartmentID,
			Total:            b.Total,
			Applied:          b.Applied,
			NotApplied:       b.NotApplied,
			Pending:          b.Pending,
			AvgResponseHours: b.AvgResponseHours,
		}
		if b.Total > 0 {
			da.ApplicationRate = float64(b.Applied) / float64(b.Total)
		}
		out.Departments = append(out.Departments, da)
	}

	engagement, err := job_views.EngagementForJob(job.ID)
	if err != nil {
		return nil, err
	}
	out.TotalViews = engagement.Views
	out.TotalApplications = out.Applied
	out.AvgViewDuration = engagement.AvgDuration
	out.ScrollRate = engagement.ScrollRate
	out.ApplyClickRate = engagement.ApplyClickRate

	views, err := job_views.ListForJob(job.ID, engagementSampleLimit, 0)
	if err != nil {
		return nil, err
	}
	if len(views) > 0 {
		var sum float64
		for _, v := range views {
			sum += v.EngagementScore()
		}
		out.AvgEngagement = sum / float64(len(views))
	}

	go metrics.Time("analytics.latency", time.Since(start))
	return out, nil
}
