package models

import (
	"time"

	types "github.com/Shyp/go-types"
)

// Id prefixes for every entity. The database stores bare uuids; ids gain
// their prefix on the way out (SELECT 'dept_' || id ...) and lose it on the
// way in.
const (
	JobPrefix         = "job_"
	ApplicationPrefix = "app_"
	ViewPrefix        = "view_"
	DepartmentPrefix  = "dept_"
	StudentPrefix     = "stu_"
)

// A Department as supplied by the department directory. Read-only to this
// service; departments are administered elsewhere.
type Department struct {
	ID        types.PrefixUUID `json:"id"`
	Name      string           `json:"name"`
	Code      string           `json:"code"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
}

// A Student as supplied by the student directory. Read-only to this service.
// CGPA, backlogs and graduation year are the eligibility inputs; they are
// snapshotted onto applications at creation time and never re-read afterward.
type Student struct {
	ID             types.PrefixUUID `json:"id"`
	DepartmentID   types.PrefixUUID `json:"department_id"`
	CGPA           float64          `json:"cgpa"`
	Backlogs       int64            `json:"backlogs"`
	GraduationYear int64            `json:"graduation_year"`
	Active         bool             `json:"active"`
	CreatedAt      time.Time        `json:"created_at"`
}
