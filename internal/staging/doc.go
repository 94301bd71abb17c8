// Package staging provides SQL access to the staging table (tmp), where
// the ingestion side writes readings awaiting delivery, and the permanent
// table (data), which holds delivered readings.
//
// Rows are only ever picked up while their outcome is unset or retry.
// Moving a delivered range from staging to permanent storage happens in
// one transaction, and the permanent insert ignores rows that already
// exist by (device, date), so replaying a move never double-counts.
package staging
