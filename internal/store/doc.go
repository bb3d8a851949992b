// Package store persists session, trial, and export records in SQLite.
//
// The database is the authoritative record of which sessions exist and
// which results have been exported. The per-participant JSON snapshot
// files carry the same trial data for recovery, so a lost database never
// costs collected responses; it only loses the export audit trail.
package store
