// Package health reports whether the components of a process are doing
// their job.
//
// A Status is healthy, degraded or unhealthy. The Monitor derives statuses
// from lifecycle transitions: an Active component is healthy, a Constructed
// or Ready one is degraded, and one that is finishing or finished is
// unhealthy. RecordError marks a component unhealthy until it becomes Active
// again.
//
//	monitor := health.NewMonitor()
//	mgr.OnStateChange(monitor.ObserveState)
//	...
//	if s := monitor.AggregateHealth("lab"); !s.IsHealthy() {
//		logger.Warn("Process degraded", "status", s.Status)
//	}
//
// Error text is sanitized before it reaches a status: URLs, paths, addresses
// and credentials are masked.
package health
