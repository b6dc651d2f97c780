package services

import (
	"log"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"

	"placementd/models/jobs"
)

// DefaultExpireInterval is how often the expiry sweep runs.
var DefaultExpireInterval = 1 * time.Minute

// ExpireOverdueJobs sweeps active jobs whose deadline has passed into the
// expired state, forever. The student-facing read paths expire lazily as
// well; the sweep exists so jobs nobody looks at still expire on time. Call
// it in its own goroutine.
func ExpireOverdueJobs(interval time.Duration) {
	for range time.Tick(interval) {
		expired, err := jobs.ExpireOverdue()
		if err != nil {
			log.Printf("expire sweep: %s", err)
			go metrics.Increment("expire_jobs.error")
			continue
		}
		if expired > 0 {
			log.Printf("expire sweep: expired %d overdue jobs", expired)
			go metrics.Measure("expire_jobs.expired", expired)
		}
	}
}
