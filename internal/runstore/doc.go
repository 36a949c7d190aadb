// Package runstore keeps a history of run outcomes in SQLite.
//
// Every run the orchestrator finishes is recorded once, keyed by run ID, so
// the CLI can list recent runs and failures across batches. The database is
// history only; artifacts and logs stay in the output root. Schema changes
// bump schemaVersion; users delete the database to adopt the new schema.
package runstore
