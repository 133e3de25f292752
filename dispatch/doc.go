// Package dispatch fans a query out to the engines selected by a registry.
//
// Every engine call runs on a shared ants worker pool under its own timeout,
// and the whole dispatch runs under a global deadline. Batch waits for all
// engines or the deadline, whichever comes first; Stream yields result sets in
// completion order. Each call produces exactly one outcome in the registry:
// success, failure or timeout. Calls abandoned because the caller went away
// are not recorded.
//
// Adapters that ignore context cancellation cannot stall a dispatch: an
// attempt that outlives its timeout is abandoned and its late answer dropped.
package dispatch
