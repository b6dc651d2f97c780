// Package factory contains helpers for instantiating tests.
package factory

import (
	"fmt"
	"testing"
	"time"

	types "github.com/Shyp/go-types"
	uuid "github.com/kevinburke/go.uuid"

	"placementd/eligibility"
	"placementd/models"
	"placementd/models/departments"
	"placementd/models/job_applications"
	"placementd/models/jobs"
	"placementd/models/students"
	"placementd/test"
)

// SampleJob is a draft posting visible to every department with no
// eligibility rules and a deadline comfortably in the future.
var SampleJob = models.Job{
	Title:               "Backend Engineer",
	Company:             "Initech",
	Description:         "Build backend services",
	Location:            "Pune",
	WorkMode:            "onsite",
	ApplicationDeadline: time.Now().UTC().Add(14 * 24 * time.Hour),
	PostingType:         models.PostingAllDepartments,
	CreatedBy:           "staff_1",
}

// RandomId returns a random UUID with the given prefix.
func RandomId(prefix string) types.PrefixUUID {
	id := uuid.NewV4()
	return types.PrefixUUID{
		UUID:   id,
		Prefix: prefix,
	}
}

// CreateDepartment inserts a department with a random unique code.
func CreateDepartment(t testing.TB, name string) *models.Department {
	t.Helper()
	test.SetUp(t)
	id := RandomId(departments.Prefix)
	code := fmt.Sprintf("%s-%.8s", name, id.UUID.String())
	d, err := departments.Create(id, name, code)
	test.AssertNotError(t, err, "creating department")
	return d
}

// CreateStudent inserts an active student in the given department.
func CreateStudent(t testing.TB, deptID types.PrefixUUID, cgpa float64, backlogs int64, graduationYear int64) *models.Student {
	t.Helper()
	test.SetUp(t)
	s, err := students.Create(RandomId(students.Prefix), deptID, cgpa, backlogs, graduationYear)
	test.AssertNotError(t, err, "creating student")
	return s
}

// CreateJob inserts j with a random id. Zero fields fall back to SampleJob's.
func CreateJob(t testing.TB, j models.Job) *models.Job {
	t.Helper()
	test.SetUp(t)
	if j.Title == "" {
		j.Title = SampleJob.Title
	}
	if j.Company == "" {
		j.Company = SampleJob.Company
	}
	if j.ApplicationDeadline.IsZero() {
		j.ApplicationDeadline = SampleJob.ApplicationDeadline
	}
	if j.PostingType == "" {
		j.PostingType = SampleJob.PostingType
	}
	job, err := jobs.Create(RandomId(jobs.Prefix), j)
	test.AssertNotError(t, err, "creating job")
	return job
}

// CreateActiveJob inserts a job and publishes it.
func CreateActiveJob(t testing.TB, j models.Job) *models.Job {
	t.Helper()
	job := CreateJob(t, j)
	job, err := jobs.Publish(job.ID)
	test.AssertNotError(t, err, "publishing job")
	return job
}

// CreateApplication inserts an application for the (job, student) pair with a
// freshly evaluated eligibility snapshot.
func CreateApplication(t testing.TB, job *models.Job, student *models.Student) *models.JobApplication {
	t.Helper()
	res := eligibility.Evaluate(job.Eligibility, eligibility.SnapshotOf(student))
	check := models.EligibilityCheck{
		Eligible:  res.Eligible,
		CheckedAt: time.Now().UTC(),
	}
	if res.Reason != "" {
		check.Reason = types.NullString{Valid: true, String: res.Reason}
	}
	app, err := job_applications.Create(RandomId(job_applications.Prefix), job.ID, student.ID,
		student.DepartmentID, check, models.Journey{
			{At: time.Now().UTC(), Action: models.ActionOffered},
		})
	test.AssertNotError(t, err, "creating application")
	return app
}

// World is a fully wired fixture: one department, one eligible student, and
// one active job open to every department.
type World struct {
	Department *models.Department
	Student    *models.Student
	Job        *models.Job
}

// CreateWorld builds the default fixture most integration tests start from.
func CreateWorld(t testing.TB) *World {
	t.Helper()
	dept := CreateDepartment(t, "CS")
	return &World{
		Department: dept,
		Student:    CreateStudent(t, dept.ID, 8.0, 0, 2026),
		Job:        CreateActiveJob(t, SampleJob),
	}
}
