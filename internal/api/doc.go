// Package api serves the dispatch trigger endpoint for the external timer and
// the read-mostly monitoring API consumed by the campaign dashboard.
package api
