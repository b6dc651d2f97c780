package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	types "github.com/Shyp/go-types"
)

type ApplicationStatus string

// StatusPendingResponse indicates the student has not yet told us whether
// they applied.
const StatusPendingResponse = ApplicationStatus("pending_response")

// StatusApplied indicates the student reported applying externally.
const StatusApplied = ApplicationStatus("applied")

// StatusNotApplied indicates the student reported not applying.
const StatusNotApplied = ApplicationStatus("not_applied")

// Scan implements the Scanner interface.
func (a *ApplicationStatus) Scan(src interface{}) error {
	if src == nil {
		return nil
	} else if txt, ok := src.(string); ok {
		*a = ApplicationStatus(txt)
		return nil
	} else if txt, ok := src.([]byte); ok {
		*a = ApplicationStatus(string(txt))
		return nil
	}
	return fmt.Errorf("Unsupported ApplicationStatus: %#v", src)
}

func (a ApplicationStatus) Value() (driver.Value, error) {
	return string(a), nil
}

type JourneyAction string

const ActionOffered = JourneyAction("offered")
const ActionViewed = JourneyAction("viewed")
const ActionVisitedExternalLink = JourneyAction("visited_external_link")
const ActionResponded = JourneyAction("responded")

// A JourneyEntry is one event in an application's append-only audit trail.
type JourneyEntry struct {
	At       time.Time         `json:"at"`
	Action   JourneyAction     `json:"action"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// A Journey is the ordered audit trail of an application's lifecycle, stored
// as a jsonb array. It is append-only and is never replayed to derive state;
// status transitions are driven by explicit columns.
type Journey []JourneyEntry

// Scan implements the Scanner interface.
func (j *Journey) Scan(src interface{}) error {
	if src == nil {
		*j = Journey{}
		return nil
	}
	bits, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("Unsupported Journey: %#v", src)
	}
	return json.Unmarshal(bits, j)
}

// Value implements the driver.Valuer interface.
func (j Journey) Value() (driver.Value, error) {
	if j == nil {
		j = Journey{}
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// An EligibilityCheck is the verdict computed when an application record is
// created. It is a frozen snapshot: later changes to the student's academic
// record never alter it.
type EligibilityCheck struct {
	Eligible  bool             `json:"eligible"`
	Reason    types.NullString `json:"reason"`
	CheckedAt time.Time        `json:"checked_at"`
}

// A JobApplication tracks one (job, student) pair. At most one row exists per
// pair; both the fan-out and the lazy view-tracking creation path insert and
// treat a unique-constraint conflict as "already exists".
type JobApplication struct {
	ID           types.PrefixUUID `json:"id"`
	JobID        types.PrefixUUID `json:"job_id"`
	StudentID    types.PrefixUUID `json:"student_id"`
	DepartmentID types.PrefixUUID `json:"department_id"`
	Status       ApplicationStatus `json:"status"`

	// StudentApplied is the student's self-reported response. nil means no
	// response yet; it can be set exactly once.
	StudentApplied *bool            `json:"student_applied"`
	ResponseNotes  types.NullString `json:"response_notes"`
	AppliedAt      types.NullTime   `json:"applied_at"`
	ResponseAt     types.NullTime   `json:"response_at"`

	EligibilityCheck EligibilityCheck `json:"eligibility_check"`

	LinkClicks       int64          `json:"link_clicks"`
	FirstLinkClickAt types.NullTime `json:"first_link_click_at"`

	Journey Journey `json:"journey"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanRespond reports whether the application is still waiting on the
// student's response. The job-side guard (active, deadline unpassed) is
// checked separately against the jobs table.
func (ja *JobApplication) CanRespond() bool {
	return ja.StudentApplied == nil
}
