package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	types "github.com/Shyp/go-types"
	"github.com/lib/pq"
)

type JobStatus string

// StatusDraft indicates a Job that has been created but is not visible to
// students yet.
const StatusDraft = JobStatus("draft")

// StatusActive indicates a published Job that students can view and respond
// to. Publishing a job fans out one application record per eligible student.
const StatusActive = JobStatus("active")

// StatusClosed indicates a Job that was closed by a staff member. Closed is
// terminal.
const StatusClosed = JobStatus("closed")

// StatusExpired indicates a Job whose application deadline passed while it
// was still active. Expired is terminal.
const StatusExpired = JobStatus("expired")

type PostingType string

const PostingAllDepartments = PostingType("all_departments")
const PostingSelectedDepartments = PostingType("selected_departments")
const PostingSingleDepartment = PostingType("single_department")

// Scan implements the Scanner interface.
func (j *JobStatus) Scan(src interface{}) error {
	if src == nil {
		return nil
	} else if txt, ok := src.(string); ok {
		*j = JobStatus(txt)
		return nil
	} else if txt, ok := src.([]byte); ok {
		*j = JobStatus(string(txt))
		return nil
	}
	return fmt.Errorf("Unsupported JobStatus: %#v", src)
}

func (j JobStatus) Value() (driver.Value, error) {
	return string(j), nil
}

// Terminal reports whether no further transition is allowed out of j.
func (j JobStatus) Terminal() bool {
	return j == StatusClosed || j == StatusExpired
}

// Scan implements the Scanner interface.
func (p *PostingType) Scan(src interface{}) error {
	if src == nil {
		return nil
	} else if txt, ok := src.(string); ok {
		*p = PostingType(txt)
		return nil
	} else if txt, ok := src.([]byte); ok {
		*p = PostingType(string(txt))
		return nil
	}
	return fmt.Errorf("Unsupported PostingType: %#v", src)
}

func (p PostingType) Value() (driver.Value, error) {
	return string(p), nil
}

// A DepartmentList is a set of department ids, stored in Postgres as a uuid
// array. Ids carry the "dept_" prefix in Go and JSON; the prefix is stripped
// before the values hit the database.
type DepartmentList []string

// Scan implements the Scanner interface.
func (d *DepartmentList) Scan(src interface{}) error {
	var a pq.StringArray
	if err := a.Scan(src); err != nil {
		return err
	}
	out := make(DepartmentList, len(a))
	for i, id := range a {
		out[i] = DepartmentPrefix + id
	}
	*d = out
	return nil
}

// Value implements the driver.Valuer interface.
func (d DepartmentList) Value() (driver.Value, error) {
	bare := make(pq.StringArray, len(d))
	for i, id := range d {
		pu, err := types.NewPrefixUUID(id)
		if err != nil {
			return nil, err
		}
		bare[i] = pu.UUID.String()
	}
	return bare.Value()
}

// Contains reports whether id (a prefixed department id) is in the list.
func (d DepartmentList) Contains(id string) bool {
	for _, v := range d {
		if v == id {
			return true
		}
	}
	return false
}

// JobEligibility is the set of rules a student must pass to be offered a job.
// Nil thresholds mean the rule is not applied.
type JobEligibility struct {
	// Departments eligible to apply. Empty means no department restriction.
	Departments DepartmentList `json:"departments"`

	MinCGPA     *float64 `json:"min_cgpa"`
	MaxBacklogs *int64   `json:"max_backlogs"`

	// Graduation years eligible to apply. Empty means all years.
	GraduationYears pq.Int64Array `json:"graduation_years"`
}

// A Job is a posting created by placement staff. Its view/application
// counters are only ever touched via atomic increments in the jobs package;
// they are never read-modified-written in application code.
type Job struct {
	ID                  types.PrefixUUID `json:"id"`
	Title               string           `json:"title"`
	Company             string           `json:"company"`
	Description         string           `json:"description"`
	Requirements        string           `json:"requirements"`
	Location            string           `json:"location"`
	WorkMode            string           `json:"work_mode"`
	ApplicationDeadline time.Time        `json:"application_deadline"`
	SalaryMin           *int64           `json:"salary_min"`
	SalaryMax           *int64           `json:"salary_max"`
	Status              JobStatus        `json:"status"`
	PostingType         PostingType      `json:"posting_type"`
	TargetDepartments   DepartmentList   `json:"target_departments"`
	Eligibility         JobEligibility   `json:"eligibility"`
	TotalViews          int64            `json:"total_views"`
	TotalApplications   int64            `json:"total_applications"`
	CreatedBy           string           `json:"created_by"`
	PublishedAt         types.NullTime   `json:"published_at"`
	ClosedAt            types.NullTime   `json:"closed_at"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// DeadlinePassed reports whether the application deadline is in the past.
func (j *Job) DeadlinePassed() bool {
	return j.ApplicationDeadline.Before(time.Now().UTC())
}

// Open reports whether students may still respond to this job.
func (j *Job) Open() bool {
	return j.Status == StatusActive && !j.DeadlinePassed()
}

// DepartmentStat is one row of a job's per-department counter breakdown.
type DepartmentStat struct {
	DepartmentID types.PrefixUUID `json:"department_id"`
	Views        int64            `json:"views"`
	Applications int64            `json:"applications"`
}
