// Package eligibility decides whether a student may be offered a job.
//
// Evaluation is a pure function over the job's rules and a snapshot of the
// student's academic record. The verdict is persisted onto the application
// record at creation time and never recomputed; callers that want a live
// answer (the student-facing job view) evaluate again with fresh inputs.
package eligibility

import (
	"fmt"

	"placementd/models"
)

// A Snapshot holds the student attributes eligibility rules run against.
type Snapshot struct {
	DepartmentID   string
	CGPA           float64
	Backlogs       int64
	GraduationYear int64
}

// A Result is the verdict for one (rules, snapshot) pair. Reason is empty
// when Eligible is true, and names the first failed rule otherwise.
type Result struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// SnapshotOf builds a Snapshot from a directory student record.
func SnapshotOf(s *models.Student) Snapshot {
	return Snapshot{
		DepartmentID:   s.DepartmentID.String(),
		CGPA:           s.CGPA,
		Backlogs:       s.Backlogs,
		GraduationYear: s.GraduationYear,
	}
}

// Evaluate runs the job's rules against the student snapshot. Rules run in a
// fixed order and the first failure wins, so the reason for a given pair of
// inputs is deterministic.
func Evaluate(rules models.JobEligibility, s Snapshot) Result {
	if len(rules.Departments) > 0 && !rules.Departments.Contains(s.DepartmentID) {
		return Result{Reason: "Department not eligible"}
	}
	if rules.MinCGPA != nil && s.CGPA < *rules.MinCGPA {
		return Result{Reason: fmt.Sprintf("Minimum CGPA required: %g", *rules.MinCGPA)}
	}
	if rules.MaxBacklogs != nil && s.Backlogs > *rules.MaxBacklogs {
		return Result{Reason: fmt.Sprintf("Maximum backlogs allowed: %d", *rules.MaxBacklogs)}
	}
	if len(rules.GraduationYears) > 0 && !containsYear(rules.GraduationYears, s.GraduationYear) {
		return Result{Reason: "Graduation year not eligible"}
	}
	return Result{Eligible: true}
}

func containsYear(years []int64, year int64) bool {
	for _, y := range years {
		if y == year {
			return true
		}
	}
	return false
}
