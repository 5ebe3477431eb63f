// Package progress provides Channel, a small observable value cell that jobs
// use to publish scalar progress and that coordinators subscribe to. A
// Channel keeps only the latest value; there is no history, buffering or
// backpressure, so late subscribers read Current instead of replaying.
package progress
