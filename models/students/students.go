// Access to the student directory.
//
// Student academic data (department, CGPA, backlogs, graduation year) feeds
// the eligibility evaluator. Fan-out enumerates active students here; it
// never writes back. Create exists for seed data and tests.
package students

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

const Prefix = models.StudentPrefix

// ErrNotFound indicates that the student was not found.
var ErrNotFound = errors.New("Student not found")

var createStmt *sql.Stmt
var getStmt *sql.Stmt
var activeByDeptStmt *sql.Stmt

// Setup prepares all database queries in this package.
func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No DB connection was established, can't query")
	}

	if getStmt != nil {
		return
	}

	query := fmt.Sprintf(`-- students.Create
INSERT INTO students (id, department_id, cgpa, backlogs, graduation_year)
VALUES ($1, $2, $3, $4, $5)
RETURNING %s`, fields())
	createStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- students.Get
SELECT %s
FROM students
WHERE id = $1`, fields())
	getStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- students.ActiveByDepartments
SELECT %s
FROM students
WHERE active
AND department_id = ANY($1::uuid[])
ORDER BY created_at ASC`, fields())
	activeByDeptStmt, err = db.Conn.Prepare(query)
	return
}

// Create a student record. Students normally arrive via the directory sync;
// this insert exists for seeding and tests.
func Create(id types.PrefixUUID, deptID types.PrefixUUID, cgpa float64, backlogs int64, graduationYear int64) (*models.Student, error) {
	s := new(models.Student)
	err := createStmt.QueryRow(id, deptID, cgpa, backlogs, graduationYear).Scan(args(s)...)
	if err != nil {
		return nil, dberror.GetError(err)
	}
	return s, nil
}

// Get the student with the given id. If no record could be found, the error
// will be students.ErrNotFound.
func Get(id types.PrefixUUID) (*models.Student, error) {
	if id.UUID == uuid.Nil {
		return nil, errors.New("Invalid id")
	}
	s := new(models.Student)
	err := getStmt.QueryRow(id).Scan(args(s)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	return s, nil
}

// ActiveByDepartments returns every active student whose department is in the
// given list.
func ActiveByDepartments(deptIDs models.DepartmentList) ([]*models.Student, error) {
	v, err := deptIDs.Value()
	if err != nil {
		return nil, err
	}
	rows, err := activeByDeptStmt.Query(v)
	if err != nil {
		return nil, dberror.GetError(err)
	}
	defer rows.Close()
	var ss []*models.Student
	for rows.Next() {
		s := new(models.Student)
		if err := rows.Scan(args(s)...); err != nil {
			return ss, err
		}
		ss = append(ss, s)
	}
	err = rows.Err()
	return ss, err
}

func fields() string {
	return fmt.Sprintf(`'%s' || id,
	'%s' || department_id,
	cgpa,
	backlogs,
	graduation_year,
	active,
	created_at`, Prefix, models.DepartmentPrefix)
}

func args(s *models.Student) []interface{} {
	return []interface{}{
		&s.ID,
		&s.DepartmentID,
		&s.CGPA,
		&s.Backlogs,
		&s.GraduationYear,
		&s.Active,
		&s.CreatedAt,
	}
}
