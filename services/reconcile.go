package services

import (
	"log"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"

	"placementd/models"
	"placementd/models/job_applications"
	"placementd/models/job_views"
	"placementd/models/jobs"
)

// A StatsDrift compares a job's incrementally maintained counters with the
// true counts derived from the underlying rows. Both deltas must be zero;
// the counters are incremented once per view row / applied response, so any
// nonzero delta is a bug or a lost update.
type StatsDrift struct {
	JobID types.PrefixUUID `json:"job_id"`

	CountedViews int64 `json:"counted_views"`
	ActualViews  int64 `json:"actual_views"`

	CountedApplications int64 `json:"counted_applications"`
	ActualApplications  int64 `json:"actual_applications"`
}

// InSync reports whether the counters match the underlying rows exactly.
func (d *StatsDrift) InSync() bool {
	return d.CountedViews == d.ActualViews &&
		d.CountedApplications == d.ActualApplications
}

// ReconcileJobStats checks one job's counters against the row counts they
// are supposed to mirror. Read-only; surfacing drift is the caller's
// problem.
func ReconcileJobStats(jobID types.PrefixUUID) (*StatsDrift, error) {
	job, err := jobs.GetRetry(jobID, 3)
	if err != nil {
		return nil, err
	}
	actualViews, err := job_views.CountForJob(job.ID)
	if err != nil {
		return nil, err
	}
	actualApplied, err := job_applications.CountApplied(job.ID)
	if err != nil {
		return nil, err
	}
	return &StatsDrift{
		JobID:               job.ID,
		CountedViews:        job.TotalViews,
		ActualViews:         actualViews,
		CountedApplications: job.TotalApplications,
		ActualApplications:  actualApplied,
	}, nil
}

// MeasureStatsDrift periodically reconciles every active job and reports
// drifting jobs to the metrics backend. Call it in its own goroutine.
func MeasureStatsDrift(interval time.Duration) {
	for range time.Tick(interval) {
		active, err := jobs.ListByStatus(models.StatusActive, 100, 0)
		if err != nil {
			go metrics.Increment("reconcile.list.error")
			continue
		}
		drifting := int64(0)
		for _, job := range active {
			drift, err := ReconcileJobStats(job.ID)
			if err != nil {
				go metrics.Increment("reconcile.job.error")
				continue
			}
			if !drift.InSync() {
				drifting++
				log.Printf("reconcile %s: views %d/%d, applications %d/%d",
					job.ID, drift.CountedViews, drift.ActualViews,
					drift.CountedApplications, drift.ActualApplications)
			}
		}
		go metrics.Measure("reconcile.drifting_jobs", drifting)
	}
}
