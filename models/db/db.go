// The database connection shared by the placement tables.
//
// Each table package (departments, students, jobs, job_applications,
// job_views) prepares its statements against Conn in its Setup function, so
// Conn must be connected via setup.DB before any of them are used.
package db

import (
	"database/sql"
	"sync"
)

var mu sync.Mutex

// Conn is the connection pool every prepared statement in models/ hangs off.
var Conn *sql.DB

// Connector establishes a connection to a Postgres database, with the given
// number of connections, and stores the connection in conn.
type Connector interface {
	Connect(conn *sql.DB, dbConns int) error
}

// Connected returns true if a connection exists to the database.
func Connected() bool {
	mu.Lock()
	defer mu.Unlock()
	return Conn != nil
}
