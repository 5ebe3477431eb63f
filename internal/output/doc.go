// Package output manages the artifact files scrapers produce. Artifacts are
// written to a local directory, served back by file name and optionally
// mirrored to a blob store once complete.
package output
