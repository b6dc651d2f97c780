// Run the placementd API server.
//
// All of the project defaults are used. There are two authenticated users for
// basic auth: "staff" (an admin) and "student". You will want to copy this
// binary and add your own authentication scheme.
package placementd

import (
	"log"
	"net/http"
	"os"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/gorilla/handlers"

	"placementd/config"
	"placementd/server"
	"placementd/services"
	"placementd/setup"
)

var serverDbConns int

func init() {
	var err error
	serverDbConns, err = config.GetInt("PG_SERVER_POOL_SIZE")
	if err != nil {
		log.Printf("Error getting database pool size: %s. Defaulting to 10", err)
		serverDbConns = 10
	}

	metrics.Namespace = "placementd.server"

	// Change these users to private values
	server.AddUser("staff", "placement-dev", server.RoleAdmin)
	server.AddUser("student", "placement-dev", server.RoleStudent)
}

func Example_server() {
	if err := setup.DB(setup.DefaultConnection, serverDbConns); err != nil {
		log.Fatal(err)
	}

	metrics.Start("web")

	go setup.MeasureActiveQueries(5 * time.Second)
	go services.ExpireOverdueJobs(services.DefaultExpireInterval)

	log.Println("Listening on port 9090")
	log.Fatal(http.ListenAndServe(":9090", handlers.LoggingHandler(os.Stdout, server.DefaultServer)))
}
