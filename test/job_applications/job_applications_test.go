package test_job_applications

import (
	"testing"
	"time"

	"placementd/models"
	"placementd/models/job_applications"
	"placementd/test"
	"placementd/test/factory"
)

func TestAll(t *testing.T) {
	test.SetUp(t)
	defer test.TearDown(t)
	t.Run("Parallel", func(t *testing.T) {
		t.Run("CreateReturnsRecord", testCreateReturnsRecord)
		t.Run("CreateDuplicate", testCreateDuplicate)
		t.Run("RecordResponseOnce", testRecordResponseOnce)
		t.Run("RecordNotApplied", testRecordNotApplied)
		t.Run("RecordLinkClick", testRecordLinkClick)
		t.Run("AppendJourney", testAppendJourney)
		t.Run("SnapshotImmutable", testSnapshotImmutable)
		t.Run("CountByStatus", testCountByStatus)
		t.Run("DepartmentBreakdown", testDepartmentBreakdown)
	})
}

func testCreateReturnsRecord(t *testing.T) {
	t.Parallel()
	w := factory.CreateWorld(t)
	app := factory.CreateApplication(t, w.Job, w.Student)
	test.AssertEquals(t, app.JobID.String(), w.Job.ID.String())
	test.AssertEquals(t, app.StudentID.String(), w.Student.ID.String())
	test.AssertEquals(t, app.Status, models.StatusPendingResponse)
	test.Assert(t, app.StudentApplied == nil, "a new application should have no response")
	test.Assert(t, app.EligibilityCheck.Eligible, "fixture student should be eligible")
	test.AssertEquals(t, len(app.Journey), 1)
	test.AssertEquals(t, app.Journey[0].Action, models.ActionOffered)
}

func testCreateDuplicate(t *testing.T) {
	t.Parallel()
	w := factory.CreateWorld(t)
	app := factory.CreateApplication(t, w.Job, w.Student)
	_, err := job_applications.Create(factory.RandomId(job_applications.Prefix),
		w.Job.ID, w.Student.ID, w.Student.DepartmentID,
		app.EligibilityCheck, nil)
	test.AssertEquals(t, err, job_applications.ErrAlreadyExists)
}

func testRecordResponseOnce(t *testing.T) {
	t.Parallel()
	w := factory.CreateWorld(t)
	app := factory.CreateApplication(t, w.Job, w.Student)

	got, err := job_applications.RecordResponse(app.ID, true, "applied on portal")
	test.AssertNotError(t, err, "recording response")
	test.AssertEquals(t, got.Status, models.StatusApplied)
	test.Assert(t, got.StudentApplied != nil && *got.StudentApplied, "student_applied should be true")
	test.Assert(t, got.ResponseAt.Valid, "response_at should be set")
	test.Assert(t, got.AppliedAt.Valid, "applied_at should be set")
	test.AssertEquals(t, got.ResponseNotes.String, "applied on portal")

	// The response fires exactly once.
	_, err = job_applications.RecordResponse(app.ID, false, "changed my mind")
	test.AssertEquals(t, err, job_applications.ErrAlreadyResponded)

	got, err = job_applications.Get(app.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, got.Status, models.StatusApplied)
}

func testRecordNotApplied(t *testing.T) {
	t.Parallel()
	w := factory.CreateWorld(t)
	app := factory.CreateApplication(t, w.Job, w.Student)
	got, err := job_applications.RecordResponse(app.ID, false, "")
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, got.Status, models.StatusNotApplied)
	test.Assert(t, got.StudentApplied != nil && !*got.StudentApplied, "student_applied should be false")
	test.Assert(t, !got.AppliedAt.Valid, "applied_at should stay null for a no")
	test.Assert(t, got.ResponseAt.Valid, "response_at should be set")
}

func testRecordLinkClick(t *testing.T) {
	t.Parallel()
	w := factory.CreateWorld(t)
	app := factory.CreateApplication(t, w.Job, w.Student)

	got, err := job_applications.RecordLinkClick(app.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, got.LinkClicks, int64(1))
	test.Assert(t, got.FirstLinkClickAt.Valid, "first click should be stamped")
	first := got.FirstLinkClickAt.Time

	got, err = job_applications.RecordLinkClick(app.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, got.LinkClicks, int64(2))
	test.AssertEquals(t, got.FirstLinkClickAt.Time.Unix(), first.Unix())
}

func testAppendJourney(t *testing.T) {
	t.Parallel()
	w := factory.CreateWorld(t)
	app := factory.CreateApplication(t, w.Job, w.Student)

	err := job_applications.AppendJourney(app.ID, models.JourneyEntry{
		At:       time.Now().UTC(),
		Action:   models.ActionViewed,
		Metadata: map[string]string{"session_id": "sess-1"},
	})
	test.AssertNotError(t, err, "appending journey entry")

	got, err := job_applications.Get(app.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, len(got.Journey), 2)
	test.AssertEquals(t, got.Journey[0].Action, models.ActionOffered)
	test.AssertEquals(t, got.Journey[1].Action, models.ActionViewed)
	test.AssertEquals(t, got.Journey[1].Metadata["session_id"], "sess-1")
}

func testSnapshotImmutable(t *testing.T) {
	t.Parallel()
	dept := factory.CreateDepartment(t, "CS")
	student := factory.CreateStudent(t, dept.ID, 6.0, 2, 2026)
	j := factory.SampleJob
	minCGPA := 8.0
	j.Eligibility.MinCGPA = &minCGPA
	job := factory.CreateActiveJob(t, j)
	app := factory.CreateApplication(t, job, student)

	frozen := app.EligibilityCheck
	test.Assert(t, !frozen.Eligible, "fixture student should fail the CGPA rule")
	test.Assert(t, frozen.Reason.Valid, "an ineligible snapshot should carry a reason")

	assertUnchanged := func() {
		got, err := job_applications.Get(app.ID)
		test.AssertNotError(t, err, "")
		test.AssertEquals(t, got.EligibilityCheck.Eligible, frozen.Eligible)
		test.AssertEquals(t, got.EligibilityCheck.Reason.Valid, frozen.Reason.Valid)
		test.AssertEquals(t, got.EligibilityCheck.Reason.String, frozen.Reason.String)
		test.AssertEquals(t, got.EligibilityCheck.CheckedAt.Unix(), frozen.CheckedAt.Unix())
	}

	_, err := job_applications.RecordLinkClick(app.ID)
	test.AssertNotError(t, err, "recording link click")
	assertUnchanged()

	err = job_applications.AppendJourney(app.ID, models.JourneyEntry{
		At:     time.Now().UTC(),
		Action: models.ActionViewed,
	})
	test.AssertNotError(t, err, "appending journey entry")
	assertUnchanged()

	_, err = job_applications.RecordResponse(app.ID, true, "applied anyway")
	test.AssertNotError(t, err, "recording response")
	assertUnchanged()
}

func testCountByStatus(t *testing.T) {
	t.Parallel()
	dept := factory.CreateDepartment(t, "CS")
	job := factory.CreateActiveJob(t, factory.SampleJob)
	students := []*models.Student{
		factory.CreateStudent(t, dept.ID, 9.0, 0, 2026),
		factory.CreateStudent(t, dept.ID, 8.0, 0, 2026),
		factory.CreateStudent(t, dept.ID, 7.0, 0, 2026),
	}
	apps := make([]*models.JobApplication, len(students))
	for i, s := range students {
		apps[i] = factory.CreateApplication(t, job, s)
	}
	_, err := job_applications.RecordResponse(apps[0].ID, true, "")
	test.AssertNotError(t, err, "")
	_, err = job_applications.RecordResponse(apps[1].ID, false, "")
	test.AssertNotError(t, err, "")

	counts, err := job_applications.CountByStatus(job.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, counts[models.StatusApplied], int64(1))
	test.AssertEquals(t, counts[models.StatusNotApplied], int64(1))
	test.AssertEquals(t, counts[models.StatusPendingResponse], int64(1))

	applied, err := job_applications.CountApplied(job.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, applied, int64(1))
}

func testDepartmentBreakdown(t *testing.T) {
	t.Parallel()
	cs := factory.CreateDepartment(t, "CS")
	mech := factory.CreateDepartment(t, "Mech")
	job := factory.CreateActiveJob(t, factory.SampleJob)

	csStudent := factory.CreateStudent(t, cs.ID, 8.5, 0, 2026)
	mechStudent := factory.CreateStudent(t, mech.ID, 8.5, 0, 2026)
	csApp := factory.CreateApplication(t, job, csStudent)
	factory.CreateApplication(t, job, mechStudent)

	_, err := job_applications.RecordResponse(csApp.ID, true, "")
	test.AssertNotError(t, err, "")

	rows, err := job_applications.GetDepartmentBreakdown(job.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, len(rows), 2)

	byDept := make(map[string]job_applications.DepartmentBreakdown)
	for _, row := range rows {
		byDept[row.DepartmentID.String()] = row
	}
	test.AssertEquals(t, byDept[cs.ID.String()].Total, int64(1))
	test.AssertEquals(t, byDept[cs.ID.String()].Applied, int64(1))
	test.AssertEquals(t, byDept[mech.ID.String()].Total, int64(1))
	test.AssertEquals(t, byDept[mech.ID.String()].Pending, int64(1))
}
