// Package session implements the per-user coordinator that runs one scraper
// at a time and fans its progress out to the user's live connections.
//
// A Session moves between idle and running. StartJob leaves idle by
// constructing the named scraper, subscribing to its progress channel and
// running it in a goroutine. The run ends when the scraper publishes 1.0
// (completed_scraper), or when Run returns an error, panics, or returns
// without completing (failed_scraper). Either way the slot is cleared and a
// new job may start.
package session
