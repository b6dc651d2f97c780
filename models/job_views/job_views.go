// Logic for interacting with the "job_views" table.
//
// One row exists per (job, student, session). A revisit within the same
// session merges into the existing row with an ON CONFLICT upsert: duration
// takes the greater value, interaction flags OR together, visit_count grows.
// Views are analytics data only; nothing reads them back to gate behavior.
package job_views

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

const Prefix = models.ViewPrefix

// ErrNotFound indicates that the view was not found.
var ErrNotFound = errors.New("Job view not found")

var upsertStmt *sql.Stmt
var getStmt *sql.Stmt
var listForJobStmt *sql.Stmt
var countForJobStmt *sql.Stmt
var engagementStmt *sql.Stmt

// Setup prepares all database queries in this package.
func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No DB connection was established, can't query")
	}

	if upsertStmt != nil {
		return
	}

	query := fmt.Sprintf(`-- job_views.Upsert
INSERT INTO job_views (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (job_id, student_id, session_id)
DO UPDATE SET duration_seconds = GREATEST(job_views.duration_seconds, EXCLUDED.duration_seconds),
	visit_count = job_views.visit_count + 1,
	scrolled_to_bottom = job_views.scrolled_to_bottom OR EXCLUDED.scrolled_to_bottom,
	clicked_apply = job_views.clicked_apply OR EXCLUDED.clicked_apply,
	clicked_company_link = job_views.clicked_company_link OR EXCLUDED.clicked_company_link,
	downloaded_documents = job_views.downloaded_documents OR EXCLUDED.downloaded_documents,
	updated_at = now()
RETURNING %s, (xmax = 0)`, insertFields(), fields())
	upsertStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_views.Get
SELECT %s
FROM job_views
WHERE id = $1`, fields())
	getStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- job_views.ListForJob
SELECT %s FROM job_views
WHERE job_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, fields())
	listForJobStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- job_views.CountForJob
SELECT count(*) FROM job_views WHERE job_id = $1`
	countForJobStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- job_views.EngagementForJob
SELECT count(*),
	COALESCE(avg(duration_seconds), 0),
	COALESCE(avg(CASE WHEN scrolled_to_bottom THEN 1.0 ELSE 0.0 END), 0),
	COALESCE(avg(CASE WHEN clicked_apply THEN 1.0 ELSE 0.0 END), 0)
FROM job_views
WHERE job_id = $1`
	engagementStmt, err = db.Conn.Prepare(query)
	return
}

// Upsert records a view, merging into the session's existing row when one
// exists. Duration never decreases. The returned bool is true when a new row
// was created, i.e. this was the first view of the session; the caller
// increments the job's view counter only in that case so the counter stays
// equal to the number of view rows.
func Upsert(id types.PrefixUUID, v models.JobView) (*models.JobView, bool, error) {
	out := new(models.JobView)
	var created bool
	scanArgs := append(args(out), &created)
	err := upsertStmt.QueryRow(id,
		v.JobID,
		v.StudentID,
		v.DepartmentID,
		v.SessionID,
		v.ViewType,
		v.DurationSeconds,
		v.ScrolledToBottom,
		v.ClickedApply,
		v.ClickedCompanyLink,
		v.DownloadedDocs,
		v.Referrer,
		v.Source,
	).Scan(scanArgs...)
	if err != nil {
		return nil, false, dberror.GetError(err)
	}
	return out, created, nil
}

// Get the view with the given id. If no record could be found, the error
// will be job_views.ErrNotFound.
func Get(id types.PrefixUUID) (*models.JobView, error) {
	if id.UUID == uuid.Nil {
		return nil, errors.New("Invalid id")
	}
	v := new(models.JobView)
	err := getStmt.QueryRow(id).Scan(args(v)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	return v, nil
}

// ListForJob returns the job's view rows, newest first.
func ListForJob(jobID types.PrefixUUID, limit int, offset int) ([]*models.JobView, error) {
	rows, err := listForJobStmt.Query(jobID, limit, offset)
	if err != nil {
		return nil, dberror.GetError(err)
	}
	defer rows.Close()
	var vs []*models.JobView
	for rows.Next() {
		v := new(models.JobView)
		if err := rows.Scan(args(v)...); err != nil {
			return vs, err
		}
		vs = append(vs, v)
	}
	err = rows.Err()
	return vs, err
}

// CountForJob returns the number of view rows for the job; the job's
// total_views counter must always equal it.
func CountForJob(jobID types.PrefixUUID) (int64, error) {
	var count int64
	err := countForJobStmt.QueryRow(jobID).Scan(&count)
	return count, err
}

// An Engagement summarizes view behavior for one job.
type Engagement struct {
	Views          int64   `json:"views"`
	AvgDuration    float64 `json:"avg_view_duration_seconds"`
	ScrollRate     float64 `json:"scroll_completion_rate"`
	ApplyClickRate float64 `json:"apply_click_rate"`
}

// EngagementForJob aggregates view counts, average duration and interaction
// rates for the job. Derived data, recomputed on every call.
func EngagementForJob(jobID types.PrefixUUID) (*Engagement, error) {
	e := new(Engagement)
	err := engagementStmt.QueryRow(jobID).Scan(&e.Views, &e.AvgDuration, &e.ScrollRate, &e.ApplyClickRate)
	if err != nil {
		return nil, dberror.GetError(err)
	}
	return e, nil
}

func insertFields() string {
	return `id,
	job_id,
	student_id,
	department_id,
	session_id,
	view_type,
	duration_seconds,
	scrolled_to_bottom,
	clicked_apply,
	clicked_company_link,
	downloaded_documents,
	referrer,
	source`
}

func fields() string {
	return fmt.Sprintf(`'%s' || id,
	'%s' || job_id,
	'%s' || student_id,
	'%s' || department_id,
	session_id,
	view_type,
	duration_seconds,
	visit_count,
	scrolled_to_bottom,
	clicked_apply,
	clicked_company_link,
	downloaded_documents,
	referrer,
	source,
	created_at,
	updated_at`, Prefix, models.JobPrefix, models.StudentPrefix, models.DepartmentPrefix)
}

func args(v *models.JobView) []interface{} {
	return []interface{}{
		&v.ID,
		&v.JobID,
		&v.StudentID,
		&v.DepartmentID,
		&v.SessionID,
		&v.ViewType,
		&v.DurationSeconds,
		&v.VisitCount,
		&v.ScrolledToBottom,
		&v.ClickedApply,
		&v.ClickedCompanyLink,
		&v.DownloadedDocs,
		&v.Referrer,
		&v.Source,
		&v.CreatedAt,
		&v.UpdatedAt,
	}
}
