// Logic for interacting with the "jobs" table.
//
// Lifecycle transitions are guarded UPDATE statements: the WHERE clause
// carries the source state, so a transition that lost a race affects zero
// rows instead of clobbering a newer state. Counters are incremented in
// single statements; nothing in this package reads a counter and writes it
// back.
package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	dberror "github.com/Shyp/go-dberror"
	types "github.com/Shyp/go-types"
	uuid "github.com/kevinburke/go.uuid"
	"github.com/lib/pq"

	"placementd/models"
	"placementd/models/db"
)

const Prefix = models.JobPrefix

// ErrNotFound indicates that the job was not found.
var ErrNotFound = errors.New("Job not found")

// ErrWrongState indicates a lifecycle transition whose source state did not
// match the row, e.g. publishing a job that is not a draft.
var ErrWrongState = errors.New("Job is not in the right state for this transition")

var createStmt *sql.Stmt
var getStmt *sql.Stmt
var updateStmt *sql.Stmt
var deleteStmt *sql.Stmt
var publishStmt *sql.Stmt
var closeStmt *sql.Stmt
var expireStmt *sql.Stmt
var expireSweepStmt *sql.Stmt
var listStmt *sql.Stmt
var listByStatusStmt *sql.Stmt
var listByDeptStmt *sql.Stmt
var listOpenForDeptStmt *sql.Stmt
var incrViewStmt *sql.Stmt
var incrApplicationStmt *sql.Stmt
var deptViewStmt *sql.Stmt
var deptApplicationStmt *sql.Stmt
var deptStatsStmt *sql.Stmt

// ExpireSweepLimit is the maximum number of overdue jobs one sweep will
// expire.
var ExpireSweepLimit = 100

// Setup prepares all database queries in this package.
func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No DB connection was established, can't query")
	}

	if createStmt != nil {
		return
	}

	query := fmt.Sprintf(`-- jobs.Create
INSERT INTO jobs (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '%s', $11, $12, $13, $14, $15, $16, $17)
RETURNING %s`, insertFields(), models.StatusDraft, fields())
	createStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.Get
SELECT %s
FROM jobs
WHERE id = $1`, fields())
	getStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.Update
UPDATE jobs SET title = $2,
	company = $3,
	description = $4,
	requirements = $5,
	location = $6,
	work_mode = $7,
	application_deadline = $8,
	salary_min = $9,
	salary_max = $10,
	posting_type = $11,
	target_departments = $12,
	min_cgpa = $13,
	max_backlogs = $14,
	eligible_departments = $15,
	graduation_years = $16,
	updated_at = now()
WHERE id = $1
RETURNING %s`, fields())
	updateStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- jobs.Delete
DELETE FROM jobs WHERE id = $1`
	deleteStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.Publish
UPDATE jobs
SET status = '%s',
	published_at = COALESCE(published_at, now()),
	updated_at = now()
WHERE id = $1
	AND status = '%s'
RETURNING %s`, models.StatusActive, models.StatusDraft, fields())
	publishStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.Close
UPDATE jobs
SET status = '%s',
	closed_at = now(),
	updated_at = now()
WHERE id = $1
	AND status = '%s'
RETURNING %s`, models.StatusClosed, models.StatusActive, fields())
	closeStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.ExpireIfOverdue
UPDATE jobs
SET status = '%s',
	closed_at = now(),
	updated_at = now()
WHERE id = $1
	AND status = '%s'
	AND application_deadline < now()`, models.StatusExpired, models.StatusActive)
	expireStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.ExpireOverdue
WITH overdue AS (
	SELECT id AS inner_id
	FROM jobs
	WHERE status = '%[1]s'
		AND application_deadline < now()
	LIMIT %[3]d
	FOR UPDATE
) UPDATE jobs
SET status = '%[2]s',
	closed_at = now(),
	updated_at = now()
FROM overdue
WHERE jobs.id = overdue.inner_id
	AND status = '%[1]s'`, models.StatusActive, models.StatusExpired, ExpireSweepLimit)
	expireSweepStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.List
SELECT %s FROM jobs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, fields())
	listStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.ListByStatus
SELECT %s FROM jobs
WHERE status = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, fields())
	listByStatusStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.ListByDepartment
SELECT %s FROM jobs
WHERE $1::uuid = ANY(target_departments)
	OR $1::uuid = ANY(eligible_departments)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, fields())
	listByDeptStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.ListOpenForDepartment
SELECT %s FROM jobs
WHERE status = '%s'
	AND application_deadline >= now()
	AND (posting_type = '%s'
		OR $1::uuid = ANY(target_departments)
		OR $1::uuid = ANY(eligible_departments))
ORDER BY application_deadline ASC
LIMIT $2 OFFSET $3`, fields(), models.StatusActive, models.PostingAllDepartments)
	listOpenForDeptStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- jobs.IncrementViewCount
UPDATE jobs SET total_views = total_views + 1, updated_at = now() WHERE id = $1`
	incrViewStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- jobs.IncrementApplicationCount
UPDATE jobs SET total_applications = total_applications + 1, updated_at = now() WHERE id = $1`
	incrApplicationStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- jobs.IncrementViewCount (department breakdown)
INSERT INTO job_department_stats (job_id, department_id, views, applications)
VALUES ($1, $2, 1, 0)
ON CONFLICT (job_id, department_id)
DO UPDATE SET views = job_department_stats.views + 1`
	deptViewStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- jobs.IncrementApplicationCount (department breakdown)
INSERT INTO job_department_stats (job_id, department_id, views, applications)
VALUES ($1, $2, 0, 1)
ON CONFLICT (job_id, department_id)
DO UPDATE SET applications = job_department_stats.applications + 1`
	deptApplicationStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- jobs.GetDepartmentStats
SELECT '%s' || department_id, views, applications
FROM job_department_stats
WHERE job_id = $1
ORDER BY department_id ASC`, models.DepartmentPrefix)
	deptStatsStmt, err = db.Conn.Prepare(query)
	return
}

// Create inserts a new job in the draft state. Status transitions, including
// activating a job at creation time, go through Publish so published_at is
// set in exactly one place. A dberror.Error is returned if Postgres rejects
// the row (bad salary bounds, unknown posting type, &c).
func Create(id types.PrefixUUID, j models.Job) (*models.Job, error) {
	created := new(models.Job)
	err := createStmt.QueryRow(id,
		j.Title,
		j.Company,
		j.Description,
		j.Requirements,
		j.Location,
		j.WorkMode,
		j.ApplicationDeadline,
		j.SalaryMin,
		j.SalaryMax,
		j.PostingType,
		normalizeDepts(j.TargetDepartments),
		j.Eligibility.MinCGPA,
		j.Eligibility.MaxBacklogs,
		normalizeDepts(j.Eligibility.Departments),
		normalizeYears(j.Eligibility.GraduationYears),
		j.CreatedBy,
	).Scan(args(created)...)
	if err != nil {
		return nil, dberror.GetError(err)
	}
	return created, nil
}

// Get the job with the given id. If no record could be found, the error will
// be jobs.ErrNotFound.
func Get(id types.PrefixUUID) (*models.Job, error) {
	if id.UUID == uuid.Nil {
		return nil, errors.New("Invalid id")
	}
	j := new(models.Job)
	err := getStmt.QueryRow(id).Scan(args(j)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	return j, nil
}

// GetRetry attempts to get the job `attempts` times before giving up.
func GetRetry(id types.PrefixUUID, attempts uint8) (job *models.Job, err error) {
	for i := uint8(0); i < attempts; i++ {
		job, err = Get(id)
		if err == nil || err == ErrNotFound {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return
}

// Update rewrites the job's editable fields. Status is deliberately not
// updatable here; use Publish/Close.
func Update(id types.PrefixUUID, j models.Job) (*models.Job, error) {
	updated := new(models.Job)
	err := updateStmt.QueryRow(id,
		j.Title,
		j.Company,
		j.Description,
		j.Requirements,
		j.Location,
		j.WorkMode,
		j.ApplicationDeadline,
		j.SalaryMin,
		j.SalaryMax,
		j.PostingType,
		normalizeDepts(j.TargetDepartments),
		j.Eligibility.MinCGPA,
		j.Eligibility.MaxBacklogs,
		normalizeDepts(j.Eligibility.Departments),
		normalizeYears(j.Eligibility.GraduationYears),
	).Scan(args(updated)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	return updated, nil
}

// Delete deletes the given job. Applications, views and stat rows cascade at
// the database layer. If no job exists to be deleted, ErrNotFound is
// returned.
func Delete(id types.PrefixUUID) error {
	if id.UUID == uuid.Nil {
		return errors.New("Invalid id")
	}
	res, err := deleteStmt.Exec(id)
	if err != nil {
		return err
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

// Publish transitions a draft job to active. published_at is set only if it
// was never set before, so republishing a job that was drafted again keeps
// the original publication time. Returns ErrWrongState if the job exists but
// is not a draft, ErrNotFound if it does not exist.
func Publish(id types.PrefixUUID) (*models.Job, error) {
	j := new(models.Job)
	err := publishStmt.QueryRow(id).Scan(args(j)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, transitionErr(id)
		}
		return nil, dberror.GetError(err)
	}
	return j, nil
}

// Close transitions an active job to closed and stamps closed_at. Returns
// ErrWrongState if the job exists but is not active.
func Close(id types.PrefixUUID) (*models.Job, error) {
	j := new(models.Job)
	err := closeStmt.QueryRow(id).Scan(args(j)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, transitionErr(id)
		}
		return nil, dberror.GetError(err)
	}
	return j, nil
}

// transitionErr disambiguates a zero-row transition: the job is either gone
// or in the wrong state.
func transitionErr(id types.PrefixUUID) error {
	if _, err := Get(id); err != nil {
		return err
	}
	return ErrWrongState
}

// ExpireIfOverdue transitions the job to expired if it is active and its
// deadline has passed, and reports whether it did. Read paths that care
// about expiry call this before loading the row.
func ExpireIfOverdue(id types.PrefixUUID) (bool, error) {
	res, err := expireStmt.Exec(id)
	if err != nil {
		return false, dberror.GetError(err)
	}
	rows, err := res.RowsAffected()
	return rows > 0, err
}

// ExpireOverdue expires every active job whose deadline has passed, up to
// ExpireSweepLimit rows, and returns the number of jobs expired.
func ExpireOverdue() (int64, error) {
	res, err := expireSweepStmt.Exec()
	if err != nil {
		return 0, dberror.GetError(err)
	}
	return res.RowsAffected()
}

// List returns jobs ordered newest-first.
func List(limit int, offset int) ([]*models.Job, error) {
	return scanList(listStmt.Query(limit, offset))
}

// ListByStatus returns jobs with the given status, newest-first.
func ListByStatus(status models.JobStatus, limit int, offset int) ([]*models.Job, error) {
	return scanList(listByStatusStmt.Query(status, limit, offset))
}

// ListByDepartment returns jobs whose targeting or eligibility lists name
// the department, in any status, newest-first. All-departments postings are
// not included; they match every department and would make the filter
// useless.
func ListByDepartment(deptID types.PrefixUUID, limit int, offset int) ([]*models.Job, error) {
	return scanList(listByDeptStmt.Query(deptID, limit, offset))
}

// ListOpenForDepartment returns active, unexpired jobs visible to students of
// the given department: posted to all departments, or naming the department
// in either the targeting or the eligibility list. Ordered by soonest
// deadline.
func ListOpenForDepartment(deptID types.PrefixUUID, limit int, offset int) ([]*models.Job, error) {
	return scanList(listOpenForDeptStmt.Query(deptID, limit, offset))
}

// IncrementViewCount adds one view to the job's total and to the department's
// breakdown row, creating the breakdown row on first touch. Both updates are
// single atomic statements; concurrent increments cannot lose updates.
func IncrementViewCount(id types.PrefixUUID, deptID types.PrefixUUID) error {
	if _, err := incrViewStmt.Exec(id); err != nil {
		return dberror.GetError(err)
	}
	if _, err := deptViewStmt.Exec(id, deptID); err != nil {
		return dberror.GetError(err)
	}
	return nil
}

// IncrementApplicationCount adds one application to the job's total and to
// the department's breakdown row. Called exactly once per application, when
// the student responds with applied=true.
func IncrementApplicationCount(id types.PrefixUUID, deptID types.PrefixUUID) error {
	if _, err := incrApplicationStmt.Exec(id); err != nil {
		return dberror.GetError(err)
	}
	if _, err := deptApplicationStmt.Exec(id, deptID); err != nil {
		return dberror.GetError(err)
	}
	return nil
}

// GetDepartmentStats returns the per-department view/application breakdown
// for the job.
func GetDepartmentStats(id types.PrefixUUID) ([]models.DepartmentStat, error) {
	rows, err := deptStatsStmt.Query(id)
	if err != nil {
		return nil, dberror.GetError(err)
	}
	defer rows.Close()
	var stats []models.DepartmentStat
	for rows.Next() {
		var s models.DepartmentStat
		if err := rows.Scan(&s.DepartmentID, &s.Views, &s.Applications); err != nil {
			return stats, err
		}
		stats = append(stats, s)
	}
	err = rows.Err()
	return stats, err
}

func scanList(rows *sql.Rows, err error) ([]*models.Job, error) {
	if err != nil {
		return nil, dberror.GetError(err)
	}
	defer rows.Close()
	var js []*models.Job
	for rows.Next() {
		j := new(models.Job)
		if err := rows.Scan(args(j)...); err != nil {
			return js, err
		}
		js = append(js, j)
	}
	err = rows.Err()
	return js, err
}

func normalizeDepts(d models.DepartmentList) models.DepartmentList {
	if d == nil {
		return models.DepartmentList{}
	}
	return d
}

func normalizeYears(y pq.Int64Array) pq.Int64Array {
	if y == nil {
		return pq.Int64Array{}
	}
	return y
}

func insertFields() string {
	return `id,
	title,
	company,
	description,
	requirements,
	location,
	work_mode,
	application_deadline,
	salary_min,
	salary_max,
	status,
	posting_type,
	target_departments,
	min_cgpa,
	max_backlogs,
	eligible_departments,
	graduation_years,
	created_by`
}

func fields() string {
	return fmt.Sprintf(`'%s' || id,
	title,
	company,
	description,
	requirements,
	location,
	work_mode,
	application_deadline,
	salary_min,
	salary_max,
	status,
	posting_type,
	target_departments,
	min_cgpa,
	max_backlogs,
	eligible_departments,
	graduation_years,
	total_views,
	total_applications,
	created_by,
	published_at,
	closed_at,
	created_at,
	updated_at`, Prefix)
}

func args(j *models.Job) []interface{} {
	return []interface{}{
		&j.ID,
		&j.Title,
		&j.Company,
		&j.Description,
		&j.Requirements,
		&j.Location,
		&j.WorkMode,
		&j.ApplicationDeadline,
		&j.SalaryMin,
		&j.SalaryMax,
		&j.Status,
		&j.PostingType,
		&j.TargetDepartments,
		&j.Eligibility.MinCGPA,
		&j.Eligibility.MaxBacklogs,
		&j.Eligibility.Departments,
		&j.Eligibility.GraduationYears,
		&j.TotalViews,
		&j.TotalApplications,
		&j.CreatedBy,
		&j.PublishedAt,
		&j.ClosedAt,
		&j.CreatedAt,
		&j.UpdatedAt,
	}
}
