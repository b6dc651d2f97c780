package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	dberror "github.com/Shyp/go-dberror"
	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"
	"github.com/Shyp/rest"

	"placementd/models"
	"placementd/models/departments"
	"placementd/models/jobs"
	"placementd/models/students"
	"placementd/services"
)

// CreateJobRequest is the body of POST /v1/jobs and PUT /v1/jobs/:id.
type CreateJobRequest struct {
	Title               string                `json:"title"`
	Company             string                `json:"company"`
	Description         string                `json:"description"`
	Requirements        string                `json:"requirements"`
	Location            string                `json:"location"`
	WorkMode            string                `json:"work_mode"`
	ApplicationDeadline time.Time             `json:"application_deadline"`
	SalaryMin           *int64                `json:"salary_min"`
	SalaryMax           *int64                `json:"salary_max"`
	Status              models.JobStatus      `json:"status"`
	PostingType         models.PostingType    `json:"posting_type"`
	TargetDepartments   models.DepartmentList `json:"target_departments"`
	Eligibility         models.JobEligibility `json:"eligibility"`
}

// JobResponse is a job plus its per-department counter breakdown.
type JobResponse struct {
	*models.Job
	DepartmentStats []models.DepartmentStat `json:"department_stats,omitempty"`
}

// validate checks the request and returns a rest.Error describing the first
// problem found, or nil.
func (jr *CreateJobRequest) validate(path string) *rest.Error {
	if jr.Title == "" {
		return createEmptyErr("title", path)
	}
	if jr.Company == "" {
		return createEmptyErr("company", path)
	}
	if jr.ApplicationDeadline.IsZero() {
		return createEmptyErr("application_deadline", path)
	}
	if !jr.ApplicationDeadline.After(time.Now().UTC()) {
		return &rest.Error{
			ID:       "invalid_deadline",
			Title:    "Application deadline must be in the future",
			Instance: path,
		}
	}
	switch jr.Status {
	case "", models.StatusDraft, models.StatusActive:
	default:
		return &rest.Error{
			ID:       "invalid_status",
			Title:    fmt.Sprintf("Invalid status for a new job: %s", jr.Status),
			Instance: path,
		}
	}
	switch jr.PostingType {
	case "", models.PostingAllDepartments:
	case models.PostingSelectedDepartments, models.PostingSingleDepartment:
		if len(jr.TargetDepartments) == 0 && len(jr.Eligibility.Departments) == 0 {
			return &rest.Error{
				ID:       "missing_parameter",
				Title:    "Please target at least one department, or post to all departments",
				Instance: path,
			}
		}
	default:
		return &rest.Error{
			ID:       "invalid_posting_type",
			Title:    fmt.Sprintf("Invalid posting type: %s", jr.PostingType),
			Instance: path,
		}
	}
	if jr.SalaryMin != nil && jr.SalaryMax != nil && *jr.SalaryMin > *jr.SalaryMax {
		return &rest.Error{
			ID:       "invalid_salary_band",
			Title:    "Minimum salary cannot exceed maximum salary",
			Instance: path,
		}
	}
	return nil
}

// checkDepartments verifies every referenced department exists, returning a
// 400 rest.Error naming the first unknown id.
func (jr *CreateJobRequest) checkDepartments(path string) *rest.Error {
	seen := make(map[string]bool)
	all := append(models.DepartmentList{}, jr.TargetDepartments...)
	all = append(all, jr.Eligibility.Departments...)
	for _, idStr := range all {
		if seen[idStr] {
			continue
		}
		seen[idStr] = true
		id, err := types.NewPrefixUUID(idStr)
		if err != nil || id.Prefix != departments.Prefix {
			return &rest.Error{
				ID:       "invalid_department",
				Title:    fmt.Sprintf("Invalid department id: %s", idStr),
				Instance: path,
			}
		}
		if _, err := departments.Get(id); err != nil {
			if err == departments.ErrNotFound {
				return &rest.Error{
					ID:       "department_not_found",
					Title:    fmt.Sprintf("Department %s does not exist", idStr),
					Instance: path,
				}
			}
			return &rest.Error{
				ID:     "server_error",
				Title:  "Unexpected server error. Please try again",
				Status: http.StatusInternalServerError,
			}
		}
	}
	return nil
}

func (jr *CreateJobRequest) toModel(createdBy string) models.Job {
	postingType := jr.PostingType
	if postingType == "" {
		postingType = models.PostingAllDepartments
	}
	return models.Job{
		Title:               jr.Title,
		Company:             jr.Company,
		Description:         jr.Description,
		Requirements:        jr.Requirements,
		Location:            jr.Location,
		WorkMode:            jr.WorkMode,
		ApplicationDeadline: jr.ApplicationDeadline.UTC(),
		SalaryMin:           jr.SalaryMin,
		SalaryMax:           jr.SalaryMax,
		PostingType:         postingType,
		TargetDepartments:   jr.TargetDepartments,
		Eligibility:         jr.Eligibility,
		CreatedBy:           createdBy,
	}
}

// POST /v1/jobs
//
// Create a job. A job created with status "active" is published immediately,
// which fans applications out to eligible students before the response is
// written.
func createJob() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil {
			badRequest(w, r, createEmptyErr("title", r.URL.Path))
			return
		}
		defer r.Body.Close()
		var jr CreateJobRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_REQUEST_BODY_SIZE)).Decode(&jr); err != nil {
			badRequest(w, r, badJSONErr())
			return
		}
		if verr := jr.validate(r.URL.Path); verr != nil {
			badRequest(w, r, verr)
			return
		}
		if verr := jr.checkDepartments(r.URL.Path); verr != nil {
			if verr.Status == http.StatusInternalServerError {
				writeServerError(w, r, verr)
				return
			}
			badRequest(w, r, verr)
			return
		}

		id := types.GenerateUUID(jobs.Prefix)
		caller := callerFrom(r)
		start := time.Now()
		job, err := jobs.Create(id, jr.toModel(caller.ID))
		go metrics.Time("job.create.latency", time.Since(start))
		if err != nil {
			switch terr := err.(type) {
			case *dberror.Error:
				badRequest(w, r, &rest.Error{
					Title:    terr.Message,
					ID:       "invalid_parameter",
					Instance: r.URL.Path,
				})
			default:
				writeServerError(w, r, err)
			}
			return
		}
		if jr.Status == models.StatusActive {
			job, err = activate(job.ID)
			if err != nil {
				writeServerError(w, r, err)
				return
			}
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, job)
		go metrics.Increment("job.create.success")
	})
}

// activate publishes a draft job, then fans out applications. Fan-out
// problems do not fail the activation: a partial fan-out is recoverable by
// activating again or waiting for the next view-driven lazy creation.
func activate(id types.PrefixUUID) (*models.Job, error) {
	job, err := jobs.Publish(id)
	if err != nil {
		return nil, err
	}
	if _, ferr := services.FanOut(job.ID); ferr != nil {
		log.Printf("activate %s: fan-out failed: %s", job.ID, ferr)
		go metrics.Increment("job.activate.fan_out.error")
	}
	return job, nil
}

// GET /v1/jobs
//
// List jobs. Staff see everything, filterable by status or by a department
// named in a job's targeting or eligibility lists; students see only
// active, unexpired jobs visible to their department.
func listJobs() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r)
		limit, offset, lerr := getPage(r)
		if lerr != nil {
			badRequest(w, r, lerr)
			return
		}

		if caller.Role == RoleStudent {
			studentID, wrote := getId(w, r, caller.ID, students.Prefix)
			if wrote {
				return
			}
			student, err := students.Get(studentID)
			if err != nil {
				if err == students.ErrNotFound {
					notFound(w, new404(r))
					return
				}
				writeServerError(w, r, err)
				return
			}
			list, err := jobs.ListOpenForDepartment(student.DepartmentID, limit, offset)
			if err != nil {
				writeServerError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusOK)
			writeJSON(w, list)
			return
		}
		if !caller.Role.Staff() {
			forbidden(w, roleErr(r, caller.Role))
			return
		}

		var list []*models.Job
		var err error
		q := r.URL.Query()
		switch {
		case q.Get("status") != "":
			list, err = jobs.ListByStatus(models.JobStatus(q.Get("status")), limit, offset)
		case q.Get("department") != "":
			deptID, wrote := getId(w, r, q.Get("department"), departments.Prefix)
			if wrote {
				return
			}
			list, err = jobs.ListByDepartment(deptID, limit, offset)
		default:
			list, err = jobs.List(limit, offset)
		}
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		writeJSON(w, list)
	})
}

// GET /v1/jobs/:id
func getJob() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := jobIdRoute.FindStringSubmatch(r.URL.Path)[1]
		id, wrote := getId(w, r, idStr, jobs.Prefix)
		if wrote {
			return
		}
		if _, err := jobs.ExpireIfOverdue(id); err != nil {
			writeServerError(w, r, err)
			return
		}
		job, err := jobs.GetRetry(id, 3)
		if err != nil {
			if err == jobs.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		stats, err := jobs.GetDepartmentStats(id)
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		writeJSON(w, &JobResponse{Job: job, DepartmentStats: stats})
	})
}

// PUT /v1/jobs/:id
//
// Rewrite a job's fields. Only the creator or an admin may update a job;
// terminal jobs cannot be updated. A status of "active" on a draft job
// publishes it and fans out; "closed" on an active job closes it.
func updateJob() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := jobIdRoute.FindStringSubmatch(r.URL.Path)[1]
		id, wrote := getId(w, r, idStr, jobs.Prefix)
		if wrote {
			return
		}
		existing, err := jobs.GetRetry(id, 3)
		if err != nil {
			if err == jobs.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		caller := callerFrom(r)
		if caller.Role != RoleAdmin && existing.CreatedBy != caller.ID {
			forbidden(w, &rest.Error{
				ID:       "not_owner",
				Title:    "Only the job's creator or an admin may modify it",
				Instance: r.URL.Path,
			})
			return
		}
		if existing.Status.Terminal() {
			badRequest(w, r, &rest.Error{
				ID:       "job_closed",
				Title:    fmt.Sprintf("Job is %s and can no longer be updated", existing.Status),
				Instance: r.URL.Path,
			})
			return
		}

		defer r.Body.Close()
		var jr CreateJobRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_REQUEST_BODY_SIZE)).Decode(&jr); err != nil {
			badRequest(w, r, badJSONErr())
			return
		}
		if verr := jr.validate(r.URL.Path); verr != nil {
			badRequest(w, r, verr)
			return
		}
		if verr := jr.checkDepartments(r.URL.Path); verr != nil {
			if verr.Status == http.StatusInternalServerError {
				writeServerError(w, r, verr)
				return
			}
			badRequest(w, r, verr)
			return
		}

		job, err := jobs.Update(id, jr.toModel(existing.CreatedBy))
		if err != nil {
			switch terr := err.(type) {
			case *dberror.Error:
				badRequest(w, r, &rest.Error{
					Title:    terr.Message,
					ID:       "invalid_parameter",
					Instance: r.URL.Path,
				})
			default:
				writeServerError(w, r, err)
			}
			return
		}

		switch {
		case jr.Status == models.StatusActive && existing.Status == models.StatusDraft:
			job, err = activate(id)
		case jr.Status == models.StatusClosed && existing.Status == models.StatusActive:
			job, err = jobs.Close(id)
		}
		if err != nil {
			if err == jobs.ErrWrongState {
				badRequest(w, r, &rest.Error{
					ID:       "invalid_transition",
					Title:    "Job changed state while this update was in flight. Reload and try again",
					Instance: r.URL.Path,
				})
				return
			}
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		writeJSON(w, job)
		go metrics.Increment("job.update.success")
	})
}

// DELETE /v1/jobs/:id
//
// Delete a job. Applications and views cascade at the database layer.
func deleteJob() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := jobIdRoute.FindStringSubmatch(r.URL.Path)[1]
		id, wrote := getId(w, r, idStr, jobs.Prefix)
		if wrote {
			return
		}
		existing, err := jobs.GetRetry(id, 3)
		if err != nil {
			if err == jobs.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		caller := callerFrom(r)
		if caller.Role != RoleAdmin && existing.CreatedBy != caller.ID {
			forbidden(w, &rest.Error{
				ID:       "not_owner",
				Title:    "Only the job's creator or an admin may delete it",
				Instance: r.URL.Path,
			})
			return
		}
		if err := jobs.Delete(id); err != nil {
			if err == jobs.ErrNotFound {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		go metrics.Increment("job.delete.success")
	})
}

// getPage parses limit/offset query parameters with sane bounds.
func getPage(r *http.Request) (limit int, offset int, err *rest.Error) {
	limit = 50
	offset = 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, perr := strconv.Atoi(s)
		if perr != nil || n <= 0 || n > 500 {
			return 0, 0, &rest.Error{
				ID:       "invalid_parameter",
				Title:    "limit must be a number between 1 and 500",
				Instance: r.URL.Path,
			}
		}
		limit = n
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		n, perr := strconv.Atoi(s)
		if perr != nil || n < 0 {
			return 0, 0, &rest.Error{
				ID:       "invalid_parameter",
				Title:    "offset must be a non-negative number",
				Instance: r.URL.Path,
			}
		}
		offset = n
	}
	return limit, offset, nil
}
