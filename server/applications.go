package server

import (
	"net/http"

	"placementd/models"
	"placementd/models/departments"
	"placementd/models/job_applications"
	"placementd/models/jobs"
	"placementd/services"
)

// ApplicationListResponse wraps one page of a job's applications.
type ApplicationListResponse struct {
	Count        int                      `json:"count"`
	Applications []*models.JobApplication `json:"applications"`
}

// GET /v1/jobs/:id/applications
//
// List a job's applications, filterable by status or department.
func listApplications() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := applicationsRoute.FindStringSubmatch(r.URL.Path)[1]
		jobID, wrote := getId(w, r, idStr, jobs.Prefix)
		if wrote {
			return
		}
		if _, err := jobs.Get(jobID); err != nil {
			if err == jobs.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		limit, offset, lerr := getPage(r)
		if lerr != nil {
			badRequest(w, r, lerr)
			return
		}

		var list []*models.JobApplication
		var err error
		q := r.URL.Query()
		switch {
		case q.Get("status") != "":
			list, err = job_applications.ListByStatus(jobID, models.ApplicationStatus(q.Get("status")), limit, offset)
		case q.Get("department") != "":
			deptID, wrote := getId(w, r, q.Get("department"), departments.Prefix)
			if wrote {
				return
			}
			list, err = job_applications.ListByDepartment(jobID, deptID, limit, offset)
		default:
			list, err = job_applications.List(jobID, limit, offset)
		}
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		writeJSON(w, &ApplicationListResponse{Count: len(list), Applications: list})
	})
}

// GET /v1/jobs/:id/analytics
//
// Aggregate funnel, per-department, and engagement analytics for one job.
func getAnalytics() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := analyticsRoute.FindStringSubmatch(r.URL.Path)[1]
		jobID, wrote := getId(w, r, idStr, jobs.Prefix)
		if wrote {
			return
		}
		if _, err := jobs.Get(jobID); err != nil {
			if err == jobs.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		analytics, err := services.Analytics(jobID)
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		writeJSON(w, analytics)
	})
}
