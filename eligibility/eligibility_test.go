package eligibility

import (
	"testing"

	types "github.com/Shyp/go-types"
	"github.com/lib/pq"

	"placementd/models"
	"placementd/test"
)

var snapshot = Snapshot{
	DepartmentID:   "dept_6740b44e-13b9-475d-af06-979627e0e0d6",
	CGPA:           8.0,
	Backlogs:       1,
	GraduationYear: 2026,
}

func TestNoRulesIsEligible(t *testing.T) {
	res := Evaluate(models.JobEligibility{}, snapshot)
	test.Assert(t, res.Eligible, "no rules should mean eligible")
	test.AssertEquals(t, res.Reason, "")
}

func TestDepartmentRule(t *testing.T) {
	rules := models.JobEligibility{
		Departments: models.DepartmentList{"dept_11111111-2222-3333-4444-555555555555"},
	}
	res := Evaluate(rules, snapshot)
	test.Assert(t, !res.Eligible, "")
	test.AssertEquals(t, res.Reason, "Department not eligible")

	rules.Departments = append(rules.Departments, snapshot.DepartmentID)
	res = Evaluate(rules, snapshot)
	test.Assert(t, res.Eligible, "snapshot department is in the list")
}

func TestMinCGPARule(t *testing.T) {
	min := 8.5
	res := Evaluate(models.JobEligibility{MinCGPA: &min}, snapshot)
	test.Assert(t, !res.Eligible, "")
	test.AssertEquals(t, res.Reason, "Minimum CGPA required: 8.5")

	// Thresholds keep their full precision in the reason.
	min = 8.25
	res = Evaluate(models.JobEligibility{MinCGPA: &min}, snapshot)
	test.Assert(t, !res.Eligible, "")
	test.AssertEquals(t, res.Reason, "Minimum CGPA required: 8.25")

	min = 8.0
	res = Evaluate(models.JobEligibility{MinCGPA: &min}, snapshot)
	test.Assert(t, res.Eligible, "an exact CGPA match passes")
}

func TestMaxBacklogsRule(t *testing.T) {
	max := int64(0)
	res := Evaluate(models.JobEligibility{MaxBacklogs: &max}, snapshot)
	test.Assert(t, !res.Eligible, "")
	test.AssertEquals(t, res.Reason, "Maximum backlogs allowed: 0")

	max = 1
	res = Evaluate(models.JobEligibility{MaxBacklogs: &max}, snapshot)
	test.Assert(t, res.Eligible, "an exact backlog match passes")
}

func TestGraduationYearRule(t *testing.T) {
	rules := models.JobEligibility{GraduationYears: pq.Int64Array{2025}}
	res := Evaluate(rules, snapshot)
	test.Assert(t, !res.Eligible, "")
	test.AssertEquals(t, res.Reason, "Graduation year not eligible")

	rules.GraduationYears = pq.Int64Array{2025, 2026}
	res = Evaluate(rules, snapshot)
	test.Assert(t, res.Eligible, "")
}

// The first failed rule decides the reason, so the same inputs always yield
// the same verdict.
func TestRuleOrderIsDeterministic(t *testing.T) {
	min := 9.5
	max := int64(0)
	rules := models.JobEligibility{
		Departments: models.DepartmentList{"dept_11111111-2222-3333-4444-555555555555"},
		MinCGPA:     &min,
		MaxBacklogs: &max,
	}
	for i := 0; i < 10; i++ {
		res := Evaluate(rules, snapshot)
		test.AssertEquals(t, res.Reason, "Department not eligible")
	}
}

func TestSnapshotOf(t *testing.T) {
	id, err := types.NewPrefixUUID("stu_6740b44e-13b9-475d-af06-979627e0e0d6")
	test.AssertNotError(t, err, "")
	deptID, err := types.NewPrefixUUID(snapshot.DepartmentID)
	test.AssertNotError(t, err, "")
	s := &models.Student{
		ID:             id,
		DepartmentID:   deptID,
		CGPA:           8.0,
		Backlogs:       1,
		GraduationYear: 2026,
	}
	test.AssertEquals(t, SnapshotOf(s), snapshot)
}
