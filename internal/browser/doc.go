// Package browser rations headless browser instances across concurrently
// running scraper jobs. Pool bounds how many handles are checked out at once
// and suspends callers on a semaphore until capacity frees; ChromedpLauncher
// starts one Chrome process per handle.
package browser
