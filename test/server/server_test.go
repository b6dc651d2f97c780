package servertest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"placementd/models"
	"placementd/models/job_applications"
	"placementd/models/jobs"
	"placementd/server"
	"placementd/test"
	"placementd/test/factory"
)

var staffAuth = &server.StaticAuthorizer{
	Caller: server.Caller{ID: "staff_1", Role: server.RoleAdmin},
}

func studentAuth(s *models.Student) *server.StaticAuthorizer {
	return &server.StaticAuthorizer{
		Caller: server.Caller{ID: s.ID.String(), Role: server.RoleStudent},
	}
}

func newRequest(t testing.TB, method string, path string, body interface{}) *http.Request {
	t.Helper()
	var req *http.Request
	if body == nil {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		b := new(bytes.Buffer)
		if err := json.NewEncoder(b).Encode(body); err != nil {
			t.Fatal(err)
		}
		req, _ = http.NewRequest(method, path, b)
	}
	req.SetBasicAuth("test", "password")
	return req
}

var validCreateRequest = server.CreateJobRequest{
	Title:               "Backend Engineer",
	Company:             "Initech",
	ApplicationDeadline: time.Now().UTC().Add(7 * 24 * time.Hour),
}

func Test401NoCredentials(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/jobs", nil)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusUnauthorized)
}

func Test405WrongMethod(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	req := newRequest(t, "PATCH", "/v1/jobs", nil)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusMethodNotAllowed)
}

func Test403StudentCreatingJob(t *testing.T) {
	t.Parallel()
	auth := &server.StaticAuthorizer{
		Caller: server.Caller{ID: "stu_6740b44e-13b9-475d-af06-979627e0e0d6", Role: server.RoleStudent},
	}
	w := httptest.NewRecorder()
	req := newRequest(t, "POST", "/v1/jobs", validCreateRequest)
	server.Get(auth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusForbidden)
}

func Test400MissingTitle(t *testing.T) {
	t.Parallel()
	jr := validCreateRequest
	jr.Title = ""
	w := httptest.NewRecorder()
	req := newRequest(t, "POST", "/v1/jobs", jr)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	test.AssertContains(t, w.Body.String(), "missing_parameter")
	test.AssertContains(t, w.Body.String(), "title")
}

func Test400PastDeadline(t *testing.T) {
	t.Parallel()
	jr := validCreateRequest
	jr.ApplicationDeadline = time.Now().UTC().Add(-time.Hour)
	w := httptest.NewRecorder()
	req := newRequest(t, "POST", "/v1/jobs", jr)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	test.AssertContains(t, w.Body.String(), "invalid_deadline")
}

func Test400TargetedWithoutDepartments(t *testing.T) {
	t.Parallel()
	jr := validCreateRequest
	jr.PostingType = models.PostingSelectedDepartments
	w := httptest.NewRecorder()
	req := newRequest(t, "POST", "/v1/jobs", jr)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
}

func Test400BadJSON(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/jobs", bytes.NewBufferString("{not json"))
	req.SetBasicAuth("test", "password")
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	test.AssertContains(t, w.Body.String(), "invalid_request")
}

func Test400BadUUIDPrefix(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	req := newRequest(t, "GET", "/v1/jobs/job_badid", nil)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
}

func TestCreateJobReturnsJob(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	w := httptest.NewRecorder()
	req := newRequest(t, "POST", "/v1/jobs", validCreateRequest)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusCreated)
	job := new(models.Job)
	err := json.NewDecoder(w.Body).Decode(job)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, job.Title, validCreateRequest.Title)
	test.AssertEquals(t, job.Status, models.StatusDraft)
	test.AssertEquals(t, job.CreatedBy, "staff_1")

	stored, err := jobs.Get(job.ID)
	test.AssertNotError(t, err, "finding created job")
	test.AssertEquals(t, stored.Company, validCreateRequest.Company)
}

func TestCreateActiveJobFansOut(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	dept := factory.CreateDepartment(t, "CS")
	student := factory.CreateStudent(t, dept.ID, 8.5, 0, 2026)

	jr := validCreateRequest
	jr.Status = models.StatusActive
	w := httptest.NewRecorder()
	req := newRequest(t, "POST", "/v1/jobs", jr)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusCreated)
	job := new(models.Job)
	err := json.NewDecoder(w.Body).Decode(job)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, job.Status, models.StatusActive)

	_, err = job_applications.GetByJobAndStudent(job.ID, student.ID)
	test.AssertNotError(t, err, "fan-out should have created an application")
}

func TestUpdateByNonOwnerForbidden(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	j := factory.SampleJob
	j.CreatedBy = "someone_else"
	job := factory.CreateJob(t, j)

	auth := &server.StaticAuthorizer{
		Caller: server.Caller{ID: "staff_2", Role: server.RolePlacementStaff},
	}
	w := httptest.NewRecorder()
	req := newRequest(t, "PUT", "/v1/jobs/"+job.ID.String(), validCreateRequest)
	server.Get(auth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusForbidden)
	test.AssertContains(t, w.Body.String(), "not_owner")
}

func TestUpdateActivatesDraft(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	j := factory.SampleJob
	j.CreatedBy = "staff_1"
	job := factory.CreateJob(t, j)

	jr := validCreateRequest
	jr.Status = models.StatusActive
	w := httptest.NewRecorder()
	req := newRequest(t, "PUT", "/v1/jobs/"+job.ID.String(), jr)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusOK)

	got, err := jobs.Get(job.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, got.Status, models.StatusActive)
	test.Assert(t, got.PublishedAt.Valid, "activation should set published_at")
}

func TestDeleteJob(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	j := factory.SampleJob
	j.CreatedBy = "staff_1"
	job := factory.CreateJob(t, j)

	w := httptest.NewRecorder()
	req := newRequest(t, "DELETE", "/v1/jobs/"+job.ID.String(), nil)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusNoContent)
	_, err := jobs.Get(job.ID)
	test.AssertEquals(t, err, jobs.ErrNotFound)
}

func TestStudentViewShowsEligibility(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	dept := factory.CreateDepartment(t, "CS")
	student := factory.CreateStudent(t, dept.ID, 6.0, 0, 2026)
	minCGPA := 7.5
	j := factory.SampleJob
	j.Eligibility = models.JobEligibility{MinCGPA: &minCGPA}
	job := factory.CreateActiveJob(t, j)

	w := httptest.NewRecorder()
	req := newRequest(t, "GET", fmt.Sprintf("/v1/jobs/%s/student-view", job.ID), nil)
	server.Get(studentAuth(student)).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusOK)
	var resp server.StudentViewResponse
	err := json.NewDecoder(w.Body).Decode(&resp)
	test.AssertNotError(t, err, "")
	test.Assert(t, !resp.Eligibility.Eligible, "6.0 CGPA should not pass a 7.5 floor")
	test.AssertEquals(t, resp.Eligibility.Reason, "Minimum CGPA required: 7.5")
}

func TestStudentViewOfDraft404(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	dept := factory.CreateDepartment(t, "CS")
	student := factory.CreateStudent(t, dept.ID, 8.0, 0, 2026)
	job := factory.CreateJob(t, factory.SampleJob)

	w := httptest.NewRecorder()
	req := newRequest(t, "GET", fmt.Sprintf("/v1/jobs/%s/student-view", job.ID), nil)
	server.Get(studentAuth(student)).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
}

func TestRecordViewAndResponse(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	dept := factory.CreateDepartment(t, "CS")
	student := factory.CreateStudent(t, dept.ID, 8.0, 0, 2026)
	job := factory.CreateActiveJob(t, factory.SampleJob)
	auth := studentAuth(student)

	w := httptest.NewRecorder()
	req := newRequest(t, "POST", fmt.Sprintf("/v1/jobs/%s/view", job.ID), server.ViewRequest{
		SessionID:       "sess-1",
		DurationSeconds: 30,
	})
	server.Get(auth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusOK)
	var vr server.ViewResponse
	err := json.NewDecoder(w.Body).Decode(&vr)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, vr.View.SessionID, "sess-1")
	test.AssertEquals(t, vr.Application.Status, models.StatusPendingResponse)

	applied := true
	w = httptest.NewRecorder()
	req = newRequest(t, "POST", fmt.Sprintf("/v1/jobs/%s/response", job.ID), server.ResponseRequest{
		Applied: &applied,
	})
	server.Get(auth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusOK)
	var app models.JobApplication
	err = json.NewDecoder(w.Body).Decode(&app)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, app.Status, models.StatusApplied)

	// A second response is rejected.
	w = httptest.NewRecorder()
	req = newRequest(t, "POST", fmt.Sprintf("/v1/jobs/%s/response", job.ID), server.ResponseRequest{
		Applied: &applied,
	})
	server.Get(auth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	test.AssertContains(t, w.Body.String(), "already_responded")
}

func TestResponseWithoutViewIs404(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	dept := factory.CreateDepartment(t, "CS")
	student := factory.CreateStudent(t, dept.ID, 8.0, 0, 2026)
	job := factory.CreateActiveJob(t, factory.SampleJob)

	applied := true
	w := httptest.NewRecorder()
	req := newRequest(t, "POST", fmt.Sprintf("/v1/jobs/%s/response", job.ID), server.ResponseRequest{
		Applied: &applied,
	})
	server.Get(studentAuth(student)).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
}

func TestListJobsDepartmentFilter(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	dept := factory.CreateDepartment(t, "CS")

	targeted := factory.SampleJob
	targeted.PostingType = models.PostingSingleDepartment
	targeted.TargetDepartments = models.DepartmentList{dept.ID.String()}
	targetedJob := factory.CreateActiveJob(t, targeted)
	broadcast := factory.CreateActiveJob(t, factory.SampleJob)

	w := httptest.NewRecorder()
	req := newRequest(t, "GET", fmt.Sprintf("/v1/jobs?department=%s", dept.ID), nil)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusOK)
	var list []*models.Job
	err := json.NewDecoder(w.Body).Decode(&list)
	test.AssertNotError(t, err, "")
	found := false
	for _, j := range list {
		test.Assert(t, j.ID.String() != broadcast.ID.String(), "all-departments job should not match the filter")
		if j.ID.String() == targetedJob.ID.String() {
			found = true
		}
	}
	test.Assert(t, found, "the job targeting the department should be listed")
}

func TestListApplications(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	w0 := factory.CreateWorld(t)
	factory.CreateApplication(t, w0.Job, w0.Student)

	w := httptest.NewRecorder()
	req := newRequest(t, "GET", fmt.Sprintf("/v1/jobs/%s/applications", w0.Job.ID), nil)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusOK)
	var resp server.ApplicationListResponse
	err := json.NewDecoder(w.Body).Decode(&resp)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, resp.Count, 1)
}

func TestAnalyticsEndpoint(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	w0 := factory.CreateWorld(t)

	w := httptest.NewRecorder()
	req := newRequest(t, "GET", fmt.Sprintf("/v1/jobs/%s/analytics", w0.Job.ID), nil)
	server.Get(staffAuth).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusOK)
	test.AssertContains(t, w.Body.String(), "application_rate")
}
