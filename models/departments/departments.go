// Access to the department directory.
//
// Departments are administered by an external system; this service resolves
// ids and enumerates active departments for job targeting. Create exists for
// seed data and tests.
package departments

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

const Prefix = models.DepartmentPrefix

// ErrNotFound indicates that the department was not found.
var ErrNotFound = errors.New("Department not found")

var createStmt *sql.Stmt
var getStmt *sql.Stmt
var getActiveStmt *sql.Stmt

// Setup prepares all database queries in this package.
func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No DB connection was established, can't query")
	}

	if getStmt != nil {
		return
	}

	query := fmt.Sprintf(`-- departments.Create
INSERT INTO departments (id, name, code)
VALUES ($1, $2, $3)
RETURNING %s`, fields())
	createStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- departments.Get
SELECT %s
FROM departments
WHERE id = $1`, fields())
	getStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- departments.GetActive
SELECT %s
FROM departments
WHERE active
ORDER BY code ASC`, fields())
	getActiveStmt, err = db.Conn.Prepare(query)
	return
}

// Create a department record. Departments normally arrive via the directory
// sync; this insert exists for seeding and tests.
func Create(id types.PrefixUUID, name string, code string) (*models.Department, error) {
	d := new(models.Department)
	err := createStmt.QueryRow(id, name, code).Scan(args(d)...)
	if err != nil {
		return nil, dberror.GetError(err)
	}
	return d, nil
}

// Get the department with the given id. If no record could be found, the
// error will be departments.ErrNotFound.
func Get(id types.PrefixUUID) (*models.Department, error) {
	if id.UUID == uuid.Nil {
		return nil, errors.New("Invalid id")
	}
	d := new(models.Department)
	err := getStmt.QueryRow(id).Scan(args(d)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	return d, nil
}

// GetActive returns every active department.
func GetActive() ([]*models.Department, error) {
	rows, err := getActiveStmt.Query()
	if err != nil {
		return nil, dberror.GetError(err)
	}
	defer rows.Close()
	var ds []*models.Department
	for rows.Next() {
		d := new(models.Department)
		if err := rows.Scan(args(d)...); err != nil {
			return ds, err
		}
		ds = append(ds, d)
	}
	err = rows.Err()
	return ds, err
}

func fields() string {
	return fmt.Sprintf(`'%s' || id,
	name,
	code,
	active,
	created_at`, Prefix)
}

func args(d *models.Department) []interface{} {
	return []interface{}{
		&d.ID,
		&d.Name,
		&d.Code,
		&d.Active,
		&d.CreatedAt,
	}
}
