package services

import (
	"fmt"
	"log"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"

	"placementd/eligibility"
	"placementd/models"
	"placementd/models/departments"
	"placementd/models/job_applications"
	"placementd/models/jobs"
	"placementd/models/students"
)

// A FanOutResult reports what one fan-out pass did.
type FanOutResult struct {
	JobID      types.PrefixUUID `json:"job_id"`
	Candidates int              `json:"candidates"`
	Created    int              `json:"created"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
}

// FanOut materializes one pending_response application per eligible, active
// student in the job's target departments. It runs synchronously right after
// a job transitions to active.
//
// The operation is best-effort and idempotent: students who already have an
// application are skipped via the unique constraint (so racing a duplicate
// activation request, or the lazy creation in RecordView, is harmless), and
// an insert failure for one student is logged and does not abort the batch.
// A partial fan-out is recovered by calling FanOut again.
func FanOut(jobID types.PrefixUUID) (*FanOutResult, error) {
	job, err := jobs.GetRetry(jobID, 3)
	if err != nil {
		return nil, err
	}

	targets, err := targetDepartments(job)
	if err != nil {
		return nil, err
	}
	candidates, err := students.ActiveByDepartments(targets)
	if err != nil {
		return nil, err
	}

	result := &FanOutResult{JobID: job.ID, Candidates: len(candidates)}
	start := time.Now()
	for _, student := range candidates {
		verdict := eligibility.Evaluate(job.Eligibility, eligibility.SnapshotOf(student))
		if !verdict.Eligible {
			result.Skipped++
			continue
		}
		check := models.EligibilityCheck{
			Eligible:  true,
			CheckedAt: time.Now().UTC(),
		}
		id := types.GenerateUUID(job_applications.Prefix)
		journey := models.Journey{{
			At:     time.Now().UTC(),
			Action: models.ActionOffered,
			Metadata: map[string]string{
				"source": "fan_out",
			},
		}}
		_, err = job_applications.Create(id, job.ID, student.ID, student.DepartmentID, check, journey)
		switch err {
		case nil:
			result.Created++
		case job_applications.ErrAlreadyExists:
			// Lost the race to an earlier fan-out or a lazy creation; the
			// row we wanted exists, which is all fan-out guarantees.
			result.Skipped++
		default:
			result.Failed++
			log.Printf("fan-out %s: insert failed for student %s: %s",
				job.ID, student.ID, err)
			go metrics.Increment("fan_out.insert.error")
		}
	}
	go metrics.Time("fan_out.latency", time.Since(start))
	go metrics.Measure("fan_out.created", int64(result.Created))
	if result.Failed > 0 {
		go metrics.Increment("fan_out.partial")
	}
	log.Printf("fan-out %s: %d candidates, %d created, %d skipped, %d failed",
		job.ID, result.Candidates, result.Created, result.Skipped, result.Failed)
	return result, nil
}

// targetDepartments resolves the set of departments a job fans out to: every
// active department for an all-departments posting, otherwise the union of
// the targeting list and the eligibility allow-list.
func targetDepartments(job *models.Job) (models.DepartmentList, error) {
	if job.PostingType == models.PostingAllDepartments {
		active, err := departments.GetActive()
		if err != nil {
			return nil, err
		}
		list := make(models.DepartmentList, 0, len(active))
		for _, d := range active {
			list = append(list, d.ID.String())
		}
		return list, nil
	}
	var list models.DepartmentList
	for _, id := range job.TargetDepartments {
		if !list.Contains(id) {
			list = append(list, id)
		}
	}
	for _, id := range job.Eligibility.Departments {
		if !list.Contains(id) {
			list = append(list, id)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("job %s has no target departments to fan out to", job.ID)
	}
	return list, nil
}
