// Run the background sweepers on their own database pool: deadline expiry
// for overdue jobs, and counter drift measurement for active ones. The server
// also runs these; run this binary instead if you want them isolated from
// request traffic.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"

	"placementd/config"
	"placementd/services"
	"placementd/setup"
)

func main() {
	dbConns, err := config.GetInt("PG_WORKER_POOL_SIZE")
	if err != nil {
		log.Printf("Error getting database pool size: %s. Defaulting to 20", err)
		dbConns = 20
	}

	if err := setup.DB(setup.DefaultConnection, dbConns); err != nil {
		log.Fatal(err)
	}

	metrics.Namespace = "placementd.sweeper"
	metrics.Start("worker")

	go setup.MeasureActiveQueries(1 * time.Second)
	go services.ExpireOverdueJobs(time.Minute)
	go services.MeasureStatsDrift(10 * time.Minute)

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM)
	sig := <-sigterm
	fmt.Printf("Caught signal %v, shutting down...\n", sig)
}
