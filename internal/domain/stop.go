package domain

import "time"

// A location to be sequenced: either the fixed start or a job site.
// Stops are treated as immutable once optimization begins.
type Stop struct {
	ID      string
	Address string
}

// A scheduled job as stored by the surrounding application.
// RouteOrder is nil until a route has been planned for the job's day.
type Job struct {
	ID            string
	CustomerName  string
	Address       string
	ScheduledDate time.Time
	RouteOrder    *int
}

// Stop view of the job used by the route optimizer.
func (j Job) Stop() Stop { return Stop{ID: j.ID, Address: j.Address} }

// 1-indexed visiting position assigned to a stop after optimization.
type StopOrder struct {
	StopID string
	Order  int
}
