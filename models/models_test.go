package models_test

import (
	"strings"
	"testing"
	"time"

	"placementd/models"
	"placementd/test"
)

func TestEngagementScore(t *testing.T) {
	// Duration weight is linear up to the five minute cap.
	v := &models.JobView{DurationSeconds: 150}
	test.AssertEquals(t, v.EngagementScore(), float64(30))

	v.DurationSeconds = 3000
	test.AssertEquals(t, v.EngagementScore(), float64(60))

	// Every bonus on top of a capped duration still tops out at 100.
	v.ScrolledToBottom = true
	v.ClickedApply = true
	v.ClickedCompanyLink = true
	v.DownloadedDocs = true
	test.AssertEquals(t, v.EngagementScore(), float64(100))

	zero := &models.JobView{}
	test.AssertEquals(t, zero.EngagementScore(), float64(0))
}

func TestJourneyValue(t *testing.T) {
	j := models.Journey{
		{At: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), Action: models.ActionOffered},
	}
	v, err := j.Value()
	test.AssertNotError(t, err, "")
	s, ok := v.(string)
	test.Assert(t, ok, "journey should serialize to a string for the jsonb parameter")
	test.AssertContains(t, s, `"action":"offered"`)

	// nil journeys become an empty array, never SQL NULL.
	v, err = models.Journey(nil).Value()
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, v.(string), "[]")
}

func TestJourneyScan(t *testing.T) {
	var j models.Journey
	err := j.Scan([]byte(`[{"at":"2026-03-01T10:00:00Z","action":"viewed","metadata":{"session_id":"s1"}}]`))
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, len(j), 1)
	test.AssertEquals(t, j[0].Action, models.ActionViewed)
	test.AssertEquals(t, j[0].Metadata["session_id"], "s1")

	err = j.Scan(nil)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, len(j), 0)
}

func TestDepartmentListValue(t *testing.T) {
	l := models.DepartmentList{"dept_6740b44e-13b9-475d-af06-979627e0e0d6"}
	v, err := l.Value()
	test.AssertNotError(t, err, "")
	// The prefix never reaches the database.
	test.AssertContains(t, v.(string), "6740b44e-13b9-475d-af06-979627e0e0d6")
	test.Assert(t, !strings.Contains(v.(string), "dept_"), "prefix should be stripped")

	_, err = models.DepartmentList{"not-a-uuid"}.Value()
	test.AssertError(t, err, "invalid ids should not serialize")
}

func TestJobOpen(t *testing.T) {
	j := &models.Job{
		Status:              models.StatusActive,
		ApplicationDeadline: time.Now().UTC().Add(time.Hour),
	}
	test.Assert(t, j.Open(), "active with a future deadline is open")

	j.ApplicationDeadline = time.Now().UTC().Add(-time.Hour)
	test.Assert(t, !j.Open(), "a passed deadline closes the job to responses")

	j.ApplicationDeadline = time.Now().UTC().Add(time.Hour)
	j.Status = models.StatusClosed
	test.Assert(t, !j.Open(), "closed jobs are not open")
}

func TestStatusTerminal(t *testing.T) {
	test.Assert(t, !models.StatusDraft.Terminal(), "")
	test.Assert(t, !models.StatusActive.Terminal(), "")
	test.Assert(t, models.StatusClosed.Terminal(), "")
	test.Assert(t, models.StatusExpired.Terminal(), "")
}

func TestCanRespond(t *testing.T) {
	app := &models.JobApplication{}
	test.Assert(t, app.CanRespond(), "no response yet")
	applied := true
	app.StudentApplied = &applied
	test.Assert(t, !app.CanRespond(), "a recorded response is final")
}
