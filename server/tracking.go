package server

import (
	"encoding/json"
	"net/http"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"
	"github.com/Shyp/rest"

	"placementd/eligibility"
	"placementd/models"
	"placementd/models/job_applications"
	"placementd/models/jobs"
	"placementd/models/students"
	"placementd/services"
)

// StudentViewResponse is the job as a student sees it: the posting plus a
// live eligibility verdict for the caller.
type StudentViewResponse struct {
	Job         *models.Job            `json:"job"`
	Eligibility eligibility.Result     `json:"eligibility"`
	Application *models.JobApplication `json:"application,omitempty"`
}

// ViewRequest is the body of POST /v1/jobs/:id/view.
type ViewRequest struct {
	SessionID          string `json:"session_id"`
	ViewType           string `json:"view_type"`
	DurationSeconds    int64  `json:"duration_seconds"`
	ScrolledToBottom   bool   `json:"scrolled_to_bottom"`
	ClickedApply       bool   `json:"clicked_apply"`
	ClickedCompanyLink bool   `json:"clicked_company_link"`
	DownloadedDocs     bool   `json:"downloaded_documents"`
	Referrer           string `json:"referrer"`
	Source             string `json:"source"`
}

// ViewResponse pairs the merged session view with the application the view
// touched.
type ViewResponse struct {
	View        *models.JobView        `json:"view"`
	Application *models.JobApplication `json:"application"`
}

// ResponseRequest is the body of POST /v1/jobs/:id/response.
type ResponseRequest struct {
	Applied *bool  `json:"applied"`
	Notes   string `json:"notes"`
}

func requestMeta(r *http.Request) services.RequestMeta {
	return services.RequestMeta{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

// callerStudent resolves the authenticated caller to a student record,
// writing a response and returning nil if it cannot.
func callerStudent(w http.ResponseWriter, r *http.Request) *models.Student {
	caller := callerFrom(r)
	id, wrote := getId(w, r, caller.ID, students.Prefix)
	if wrote {
		return nil
	}
	student, err := students.Get(id)
	if err != nil {
		if err == students.ErrNotFound {
			notFound(w, new404(r))
			return nil
		}
		writeServerError(w, r, err)
		return nil
	}
	return student
}

// visibleTo reports whether a job's targeting includes the department.
func visibleTo(job *models.Job, deptID types.PrefixUUID) bool {
	if job.PostingType == models.PostingAllDepartments {
		return true
	}
	dept := deptID.String()
	return job.TargetDepartments.Contains(dept) || job.Eligibility.Departments.Contains(dept)
}

// GET /v1/jobs/:id/student-view
//
// The job as the calling student sees it, with a live eligibility verdict.
// Jobs that are not open, or not visible to the student's department, return
// a 404 so students cannot discover drafts.
func getStudentView() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := studentViewRoute.FindStringSubmatch(r.URL.Path)[1]
		jobID, wrote := getId(w, r, idStr, jobs.Prefix)
		if wrote {
			return
		}
		student := callerStudent(w, r)
		if student == nil {
			return
		}
		if _, err := jobs.ExpireIfOverdue(jobID); err != nil {
			writeServerError(w, r, err)
			return
		}
		job, err := jobs.GetRetry(jobID, 3)
		if err != nil {
			if err == jobs.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		if !job.Open() || !visibleTo(job, student.DepartmentID) {
			notFound(w, new404(r))
			return
		}
		resp := &StudentViewResponse{
			Job:         job,
			Eligibility: eligibility.Evaluate(job.Eligibility, eligibility.SnapshotOf(student)),
		}
		app, err := job_applications.GetByJobAndStudent(jobID, student.ID)
		if err == nil {
			resp.Application = app
		} else if err != job_applications.ErrNotFound {
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		writeJSON(w, resp)
		go metrics.Increment("job.student_view")
	})
}

// POST /v1/jobs/:id/view
//
// Record (or extend) one session's viewing of a job.
func recordView() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := viewRoute.FindStringSubmatch(r.URL.Path)[1]
		jobID, wrote := getId(w, r, idStr, jobs.Prefix)
		if wrote {
			return
		}
		student := callerStudent(w, r)
		if student == nil {
			return
		}
		defer r.Body.Close()
		var vr ViewRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_REQUEST_BODY_SIZE)).Decode(&vr); err != nil {
			badRequest(w, r, badJSONErr())
			return
		}
		if vr.SessionID == "" {
			badRequest(w, r, createEmptyErr("session_id", r.URL.Path))
			return
		}
		if vr.DurationSeconds < 0 {
			badRequest(w, r, &rest.Error{
				ID:       "invalid_parameter",
				Title:    "duration_seconds cannot be negative",
				Instance: r.URL.Path,
			})
			return
		}

		start := time.Now()
		view, app, err := services.RecordView(jobID, student.ID, services.ViewData{
			SessionID:          vr.SessionID,
			ViewType:           vr.ViewType,
			DurationSeconds:    vr.DurationSeconds,
			ScrolledToBottom:   vr.ScrolledToBottom,
			ClickedApply:       vr.ClickedApply,
			ClickedCompanyLink: vr.ClickedCompanyLink,
			DownloadedDocs:     vr.DownloadedDocs,
			Referrer:           vr.Referrer,
			Source:             vr.Source,
		}, requestMeta(r))
		go metrics.Time("job.view.latency", time.Since(start))
		if err != nil {
			if err == jobs.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		writeJSON(w, &ViewResponse{View: view, Application: app})
	})
}

// POST /v1/jobs/:id/application-click
//
// Record that the student followed the external application link.
func recordLinkClick() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := linkClickRoute.FindStringSubmatch(r.URL.Path)[1]
		jobID, wrote := getId(w, r, idStr, jobs.Prefix)
		if wrote {
			return
		}
		student := callerStudent(w, r)
		if student == nil {
			return
		}
		app, err := job_applications.GetByJobAndStudent(jobID, student.ID)
		if err != nil {
			if err == job_applications.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		app, err = services.RecordLinkClick(app.ID, requestMeta(r))
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		writeJSON(w, app)
	})
}

// POST /v1/jobs/:id/response
//
// Record the student's one-time applied / not-applied answer.
func recordResponse() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := responseRoute.FindStringSubmatch(r.URL.Path)[1]
		jobID, wrote := getId(w, r, idStr, jobs.Prefix)
		if wrote {
			return
		}
		student := callerStudent(w, r)
		if student == nil {
			return
		}
		defer r.Body.Close()
		var rr ResponseRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_REQUEST_BODY_SIZE)).Decode(&rr); err != nil {
			badRequest(w, r, badJSONErr())
			return
		}
		if rr.Applied == nil {
			badRequest(w, r, createEmptyErr("applied", r.URL.Path))
			return
		}
		app, err := job_applications.GetByJobAndStudent(jobID, student.ID)
		if err != nil {
			if err == job_applications.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		app, err = services.RecordResponse(app.ID, *rr.Applied, rr.Notes, requestMeta(r))
		if err != nil {
			switch err {
			case services.ErrJobNotOpen:
				badRequest(w, r, &rest.Error{
					ID:       "job_closed",
					Title:    "This job is no longer accepting responses",
					Instance: r.URL.Path,
				})
			case job_applications.ErrAlreadyResponded:
				badRequest(w, r, &rest.Error{
					ID:       "already_responded",
					Title:    "A response has already been recorded for this job",
					Instance: r.URL.Path,
				})
			case job_applications.ErrNotFound:
				notFound(w, new404(r))
			default:
				writeServerError(w, r, err)
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		writeJSON(w, app)
		go metrics.Increment("job.response.recorded")
	})
}
