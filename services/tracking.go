package services

import (
	"errors"
	"log"
	"strconv"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"

	"placementd/eligibility"
	"placementd/models"
	"placementd/models/job_applications"
	"placementd/models/job_views"
	"placementd/models/jobs"
	"placementd/models/students"
)

// ErrJobNotOpen indicates a response was attempted against a job that is
// closed, expired, or past its deadline.
var ErrJobNotOpen = errors.New("Job is no longer accepting responses")

// ViewData carries what the client reported about one viewing of a job.
type ViewData struct {
	SessionID          string
	ViewType           string
	DurationSeconds    int64
	ScrolledToBottom   bool
	ClickedApply       bool
	ClickedCompanyLink bool
	DownloadedDocs     bool
	Referrer           string
	Source             string
}

// RequestMeta is the request context stamped onto journey entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// RecordView records a student viewing a job. It upserts the session's view
// row, lazily creates the (job, student) application if fan-out never did
// (with a freshly computed eligibility snapshot), bumps the job's view
// counter for the first view of a session, and appends a viewed entry to the
// application's journey.
func RecordView(jobID types.PrefixUUID, studentID types.PrefixUUID, data ViewData, meta RequestMeta) (*models.JobView, *models.JobApplication, error) {
	student, err := students.Get(studentID)
	if err != nil {
		return nil, nil, err
	}
	job, err := jobs.GetRetry(jobID, 3)
	if err != nil {
		return nil, nil, err
	}

	viewID := types.GenerateUUID(job_views.Prefix)
	view, created, err := job_views.Upsert(viewID, models.JobView{
		JobID:              job.ID,
		StudentID:          student.ID,
		DepartmentID:       student.DepartmentID,
		SessionID:          data.SessionID,
		ViewType:           data.ViewType,
		DurationSeconds:    data.DurationSeconds,
		ScrolledToBottom:   data.ScrolledToBottom,
		ClickedApply:       data.ClickedApply,
		ClickedCompanyLink: data.ClickedCompanyLink,
		DownloadedDocs:     data.DownloadedDocs,
		Referrer:           data.Referrer,
		Source:             data.Source,
	})
	if err != nil {
		return nil, nil, err
	}

	app, err := ensureApplication(job, student)
	if err != nil {
		return nil, nil, err
	}

	// One view row, one counted view. Merged revisits never re-count.
	if created {
		if err := jobs.IncrementViewCount(job.ID, student.DepartmentID); err != nil {
			// The view row exists; a failed counter bump is drift the
			// reconciliation check surfaces, not a reason to fail the
			// request.
			log.Printf("view %s: counter increment failed: %s", view.ID, err)
			go metrics.Increment("track.view.counter.error")
		}
	}

	err = job_applications.AppendJourney(app.ID, models.JourneyEntry{
		At:     time.Now().UTC(),
		Action: models.ActionViewed,
		Metadata: map[string]string{
			"session_id": data.SessionID,
			"duration":   strconv.FormatInt(data.DurationSeconds, 10),
			"ip":         meta.IP,
			"user_agent": meta.UserAgent,
		},
	})
	if err != nil {
		log.Printf("view %s: journey append failed: %s", view.ID, err)
	}
	go metrics.Increment("track.view.success")
	return view, app, nil
}

// RecordResponse stores the student's self-reported applied/not-applied
// answer. Legal only while the job is active with an unpassed deadline and
// the application has no recorded response; a second call returns
// job_applications.ErrAlreadyResponded and leaves the stored response
// unchanged. The job's application counter increments here, and only here,
// when applied is true.
func RecordResponse(appID types.PrefixUUID, applied bool, notes string, meta RequestMeta) (*models.JobApplication, error) {
	app, err := job_applications.Get(appID)
	if err != nil {
		return nil, err
	}
	if _, err := jobs.ExpireIfOverdue(app.JobID); err != nil {
		return nil, err
	}
	job, err := jobs.GetRetry(app.JobID, 3)
	if err != nil {
		return nil, err
	}
	if !job.Open() {
		go metrics.Increment("track.response.closed")
		return nil, ErrJobNotOpen
	}

	updated, err := job_applications.RecordResponse(appID, applied, notes)
	if err != nil {
		if err == job_applications.ErrAlreadyResponded {
			go metrics.Increment("track.response.duplicate")
		}
		return nil, err
	}

	if applied {
		if err := jobs.IncrementApplicationCount(job.ID, updated.DepartmentID); err != nil {
			log.Printf("response %s: counter increment failed: %s", appID, err)
			go metrics.Increment("track.response.counter.error")
		}
	}

	err = job_applications.AppendJourney(appID, models.JourneyEntry{
		At:     time.Now().UTC(),
		Action: models.ActionResponded,
		Metadata: map[string]string{
			"applied":    strconv.FormatBool(applied),
			"ip":         meta.IP,
			"user_agent": meta.UserAgent,
		},
	})
	if err != nil {
		log.Printf("response %s: journey append failed: %s", appID, err)
	}
	go metrics.Increment("track.response.success")
	return updated, nil
}

// RecordLinkClick counts a click-through to the company's external
// application page and appends the matching journey entry. The count only
// grows; the journey is an audit trail and may grow without bound.
func RecordLinkClick(appID types.PrefixUUID, meta RequestMeta) (*models.JobApplication, error) {
	app, err := job_applications.RecordLinkClick(appID)
	if err != nil {
		return nil, err
	}
	err = job_applications.AppendJourney(appID, models.JourneyEntry{
		At:     time.Now().UTC(),
		Action: models.ActionVisitedExternalLink,
		Metadata: map[string]string{
			"click_number": strconv.FormatInt(app.LinkClicks, 10),
			"ip":           meta.IP,
			"user_agent":   meta.UserAgent,
		},
	})
	if err != nil {
		log.Printf("link click %s: journey append failed: %s", appID, err)
	}
	go metrics.Increment("track.link_click.success")
	return app, nil
}

// ensureApplication returns the (job, student) application, creating it with
// a fresh eligibility snapshot when fan-out never reached this student. The
// insert races with fan-out; losing that race means the row exists, so the
// loser just reloads it.
func ensureApplication(job *models.Job, student *models.Student) (*models.JobApplication, error) {
	verdict := eligibility.Evaluate(job.Eligibility, eligibility.SnapshotOf(student))
	check := models.EligibilityCheck{
		Eligible:  verdict.Eligible,
		CheckedAt: time.Now().UTC(),
	}
	if verdict.Reason != "" {
		check.Reason = types.NullString{Valid: true, String: verdict.Reason}
	}
	id := types.GenerateUUID(job_applications.Prefix)
	journey := models.Journey{{
		At:     time.Now().UTC(),
		Action: models.ActionOffered,
		Metadata: map[string]string{
			"source": "first_view",
		},
	}}
	app, err := job_applications.Create(id, job.ID, student.ID, student.DepartmentID, check, journey)
	if err == job_applications.ErrAlreadyExists {
		return job_applications.GetByJobAndStudent(job.ID, student.ID)
	}
	return app, err
}
