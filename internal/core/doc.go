// Package core provides the business logic for product intake.
//
// The package holds all domain logic independent of any transport or
// storage. Web handlers, the CLI and tests drive it through [Service];
// storage backends plug in through the [StagingStore], [CanonicalStore],
// [TaxonomySource] and [AuditSink] interfaces.
//
// # Flow
//
//  1. [Service.Ingest] reads a CSV or XLSX sheet into [RawRow] values.
//  2. A [Pipeline] normalizes each row: the variant text is parsed into
//     "<SIZE><UNIT> x <COUNT>" with a total weight in kg, and the product is
//     classified against the current taxonomy.
//  3. [Service.Stage] stores valid candidates as pending staging records.
//  4. Reviewers call [Service.Transition], [Service.Edit] and
//     [Service.Remove]. Status changes follow the state machine in
//     status.go.
//  5. [Service.ReconcileApproved] commits approved records that are not in
//     the catalog and relabels the rest as duplicate.
//
// # Bulk operations
//
// Every bulk write returns one [Outcome] per id. Records are processed
// independently and in parallel; there is no cross-record atomicity, and a
// failed record never hides the others.
//
// # Error Handling
//
// Errors carry one of the kinds in errors.go and match its sentinel with
// errors.Is. [MapError] turns any error into a [UserMessage] with a support
// code. An unreadable variant is not an error: it leaves WeightKg nil and
// is counted as unparseable in the ingest result.
//
// # Audit Logging
//
// Review actions are recorded through the [AuditSink] with severity levels:
//
//   - Low: edits
//   - Medium: approvals, rejections, duplicate relabels
//   - High: ingests, deletions, duplicate discards
//   - Critical: catalog commits
package core
