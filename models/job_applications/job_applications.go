// Logic for interacting with the "job_applications" table.
//
// The table carries a unique constraint on (job_id, student_id). Both
// creation paths (bulk fan-out and lazy creation on first view) insert and
// map a unique violation to ErrAlreadyExists; neither checks for an existing
// row first. The student's response is single-fire: the UPDATE is guarded by
// student_applied IS NULL, so the second response affects zero rows no matter
// how the calls interleave.
package job_applications

import (
	"database/sql"
	"errors"
	"fmt"

	dberror "github.com/Shyp/go-dberror"
	types "github.com/Shyp/go-types"
	uuid "github.com/kevinburke/go.uuid"

	"placementd/models"
	"placementd/models/db"
)

const Prefix = models.ApplicationPrefix

// ErrNotFound indicates that the application was not found.
var ErrNotFound = errors.New("Job application not found")

// ErrAlreadyExists indicates an application already exists for the (job,
// student) pair. Callers treat this as success and reload the existing row.
var ErrAlreadyExists = errors.New("Application already exists for this job and student")

// ErrAlreadyResponded indicates the student already recorded a response.
// A second response is a client error, not a race to be tolerated.
var ErrAlreadyResponded = errors.New("A response has already been recorded for this application")

var createStmt *sql.Stmt
var getStmt *sql.Stmt
var getByJobAndStudentStmt *sql.Stmt
var listStmt *sql.Stmt
var listByStatusStmt *sql.Stmt
var listByDepartmentStmt *sql.Stmt
var respondStmt *sql.Stmt
var linkClickStmt *sql.Stmt
var appendJourneyStmt *sql.Stmt
var countByStatusStmt *sql.Stmt
var countAppliedStmt *sql.Stmt
var responseTimesStmt *sql.Stmt

// Setup prepares all database queries in this package.
func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No DB connection was established, can't query")
	}

	if createStmt != nil {
		return
	}

	query := fmt.Sprintf(`-- job_applications.Create
INSERT INTO job_applications (%s)
VALUES ($1, $2, $3, $4, '%s', $5, $6, $7, $8)
RETURNING %s`, insertFields(), models.StatusPendingResponse, fields())
	createStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_applications.Get
SELECT %s
FROM job_applications
WHERE id = $1`, fields())
	getStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_applications.GetByJobAndStudent
SELECT %s
FROM job_applications
WHERE job_id = $1
AND student_id = $2`, fields())
	getByJobAndStudentStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_applications.List
SELECT %s FROM job_applications
WHERE job_id = $1
ORDER BY created_at ASC
LIMIT $2 OFFSET $3`, fields())
	listStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_applications.ListByStatus
SELECT %s FROM job_applications
WHERE job_id = $1
AND status = $2
ORDER BY created_at ASC
LIMIT $3 OFFSET $4`, fields())
	listByStatusStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_applications.ListByDepartment
SELECT %s FROM job_applications
WHERE job_id = $1
AND department_id = $2
ORDER BY created_at ASC
LIMIT $3 OFFSET $4`, fields())
	listByDepartmentStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_applications.RecordResponse
UPDATE job_applications
SET student_applied = $2,
	response_notes = $3,
	status = CASE WHEN $2 THEN '%s' ELSE '%s' END,
	response_at = now(),
	applied_at = CASE WHEN $2 THEN now() ELSE applied_at END,
	updated_at = now()
WHERE id = $1
	AND student_applied IS NULL
RETURNING %s`, models.StatusApplied, models.StatusNotApplied, fields())
	respondStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_applications.RecordLinkClick
UPDATE job_applications
SET link_clicks = link_clicks + 1,
	first_link_click_at = COALESCE(first_link_click_at, now()),
	updated_at = now()
WHERE id = $1
RETURNING %s`, fields())
	linkClickStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- job_applications.AppendJourney
UPDATE job_applications
SET journey = journey || $2::jsonb,
	updated_at = now()
WHERE id = $1`
	appendJourneyStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- job_applications.CountByStatus
SELECT status, count(*) FROM job_applications WHERE job_id = $1 GROUP BY status`
	countByStatusStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_applications.CountApplied
SELECT count(*) FROM job_applications WHERE job_id = $1 AND status = '%s'`,
		models.StatusApplied)
	countAppliedStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_applications.DepartmentBreakdown
SELECT '%s' || department_id,
	count(*),
	count(*) FILTER (WHERE status = '%s'),
	count(*) FILTER (WHERE status = '%s'),
	count(*) FILTER (WHERE status = '%s'),
	avg(EXTRACT(EPOCH FROM (response_at - created_at))) FILTER (WHERE response_at IS NOT NULL)
FROM job_applications
WHERE job_id = $1
GROUP BY department_id
ORDER BY department_id ASC`, models.DepartmentPrefix,
		models.StatusApplied, models.StatusNotApplied, models.StatusPendingResponse)
	responseTimesStmt, err = db.Conn.Prepare(query)
	return
}

// Create inserts a new application in the pending_response state with the
// given eligibility snapshot. Exactly one application may exist per (job,
// student) pair: a unique-constraint conflict is returned as
// ErrAlreadyExists, which callers treat as success.
func Create(id types.PrefixUUID, jobID types.PrefixUUID, studentID types.PrefixUUID,
	deptID types.PrefixUUID, check models.EligibilityCheck, journey models.Journey) (*models.JobApplication, error) {
	ja := new(models.JobApplication)
	err := createStmt.QueryRow(id, jobID, studentID, deptID,
		check.Eligible, check.Reason, check.CheckedAt, journey).Scan(args(ja)...)
	if err != nil {
		dberr := dberror.GetError(err)
		if terr, ok := dberr.(*dberror.Error); ok && terr.Code == dberror.CodeUniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, dberr
	}
	return ja, nil
}

// Get the application with the given id. If no record could be found, the
// error will be job_applications.ErrNotFound.
func Get(id types.PrefixUUID) (*models.JobApplication, error) {
	if id.UUID == uuid.Nil {
		return nil, errors.New("Invalid id")
	}
	ja := new(models.JobApplication)
	err := getStmt.QueryRow(id).Scan(args(ja)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	return ja, nil
}

// GetByJobAndStudent returns the unique application for the (job, student)
// pair, or ErrNotFound.
func GetByJobAndStudent(jobID types.PrefixUUID, studentID types.PrefixUUID) (*models.JobApplication, error) {
	ja := new(models.JobApplication)
	err := getByJobAndStudentStmt.QueryRow(jobID, studentID).Scan(args(ja)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	return ja, nil
}

// List returns the job's applications, oldest first.
func List(jobID types.PrefixUUID, limit int, offset int) ([]*models.JobApplication, error) {
	return scanList(listStmt.Query(jobID, limit, offset))
}

// ListByStatus returns the job's applications with the given status.
func ListByStatus(jobID types.PrefixUUID, status models.ApplicationStatus, limit int, offset int) ([]*models.JobApplication, error) {
	return scanList(listByStatusStmt.Query(jobID, status, limit, offset))
}

// ListByDepartment returns the job's applications for one department.
func ListByDepartment(jobID types.PrefixUUID, deptID types.PrefixUUID, limit int, offset int) ([]*models.JobApplication, error) {
	return scanList(listByDepartmentStmt.Query(jobID, deptID, limit, offset))
}

// RecordResponse stores the student's self-reported response and derives the
// terminal status from it. The guarded UPDATE only matches while
// student_applied is NULL; if the application has already been answered,
// ErrAlreadyResponded is returned and the stored response is untouched.
func RecordResponse(id types.PrefixUUID, applied bool, notes string) (*models.JobApplication, error) {
	ja := new(models.JobApplication)
	err := respondStmt.QueryRow(id, applied, notes).Scan(args(ja)...)
	if err != nil {
		if err == sql.ErrNoRows {
			// Zero rows: either no such application, or it was answered
			// already.
			if _, gerr := Get(id); gerr != nil {
				return nil, gerr
			}
			return nil, ErrAlreadyResponded
		}
		return nil, dberror.GetError(err)
	}
	return ja, nil
}

// RecordLinkClick atomically increments the external-link click counter and
// stamps the first click time on the first call.
func RecordLinkClick(id types.PrefixUUID) (*models.JobApplication, error) {
	ja := new(models.JobApplication)
	err := linkClickStmt.QueryRow(id).Scan(args(ja)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	return ja, nil
}

// AppendJourney appends one entry to the application's audit trail. The
// journey is jsonb; the append happens in the database so concurrent
// appenders cannot overwrite each other.
func AppendJourney(id types.PrefixUUID, entry models.JourneyEntry) error {
	v, err := models.Journey{entry}.Value()
	if err != nil {
		return err
	}
	res, err := appendJourneyStmt.Exec(id, v)
	if err != nil {
		return dberror.GetError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus returns a map of application status to count for the job.
func CountByStatus(jobID types.PrefixUUID) (map[models.ApplicationStatus]int64, error) {
	rows, err := countByStatusStmt.Query(jobID)
	m := make(map[models.ApplicationStatus]int64)
	if err != nil {
		return m, dberror.GetError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var status models.ApplicationStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return m, err
		}
		m[status] = count
	}
	err = rows.Err()
	return m, err
}

// CountApplied returns the number of applications in the applied state. The
// job's total_applications counter must always equal this count; the
// reconciliation service checks the two against each other.
func CountApplied(jobID types.PrefixUUID) (int64, error) {
	var count int64
	err := countAppliedStmt.QueryRow(jobID).Scan(&count)
	return count, err
}

// A DepartmentBreakdown aggregates one department's applications for a job.
type DepartmentBreakdown struct {
	DepartmentID     types.PrefixUUID `json:"department_id"`
	Total            int64            `json:"total"`
	Applied          int64            `json:"applied"`
	NotApplied       int64            `json:"not_applied"`
	Pending          int64            `json:"pending"`
	AvgResponseHours *float64         `json:"avg_response_hours"`
}

// GetDepartmentBreakdown returns per-department application counts and the
// average response time, for the analytics aggregator. Derived data,
// recomputed on every call.
func GetDepartmentBreakdown(jobID types.PrefixUUID) ([]DepartmentBreakdown, error) {
	rows, err := responseTimesStmt.Query(jobID)
	if err != nil {
		return nil, dberror.GetError(err)
	}
	defer rows.Close()
	var bs []DepartmentBreakdown
	for rows.Next() {
		var b DepartmentBreakdown
		var avgSeconds *float64
		if err := rows.Scan(&b.DepartmentID, &b.Total, &b.Applied, &b.NotApplied, &b.Pending, &avgSeconds); err != nil {
			return bs, err
		}
		if avgSeconds != nil {
			h := *avgSeconds / 3600
			b.AvgResponseHours = &h
		}
		bs = append(bs, b)
	}
	err = rows.Err()
	return bs, err
}

func scanList(rows *sql.Rows, err error) ([]*models.JobApplication, error) {
	if err != nil {
		return nil, dberror.GetError(err)
	}
	defer rows.Close()
	var jas []*models.JobApplication
	for rows.Next() {
		ja := new(models.JobApplication)
		if err := rows.Scan(args(ja)...); err != nil {
			return jas, err
		}
		jas = append(jas, ja)
	}
	err = rows.Err()
	return jas, err
}

func insertFields() string {
	return `id,
	job_id,
	student_id,
	department_id,
	status,
	eligible,
	eligibility_reason,
	eligibility_checked_at,
	journey`
}

func fields() string {
	return fmt.Sprintf(`'%s' || id,
	'%s' || job_id,
	'%s' || student_id,
	'%s' || department_id,
	status,
	student_applied,
	response_notes,
	applied_at,
	response_at,
	eligible,
	eligibility_reason,
	eligibility_checked_at,
	link_clicks,
	first_link_click_at,
	journey,
	created_at,
	updated_at`, Prefix, models.JobPrefix, models.StudentPrefix, models.DepartmentPrefix)
}

func args(ja *models.JobApplication) []interface{} {
	return []interface{}{
		&ja.ID,
		&ja.JobID,
		&ja.StudentID,
		&ja.DepartmentID,
		&ja.Status,
		&ja.StudentApplied,
		&ja.ResponseNotes,
		&ja.AppliedAt,
		&ja.ResponseAt,
		&ja.EligibilityCheck.Eligible,
		&ja.EligibilityCheck.Reason,
		&ja.EligibilityCheck.CheckedAt,
		&ja.LinkClicks,
		&ja.FirstLinkClickAt,
		&ja.Journey,
		&ja.CreatedAt,
		&ja.UpdatedAt,
	}
}
