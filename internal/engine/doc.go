// Package engine implements the timelogbot sync orchestrator.
//
// One call to Engine.Run processes every configured project once:
//
//  1. Aggregate: fetch time entries and summarize them
//  2. Evaluate: compare the aggregate with the stored milestone state
//  3. Persist: save the updated state (and firing records) durably
//  4. Notify: send one combined message when milestones were crossed
//  5. Merge: splice the regenerated report into the wiki page and write it
//
// ORDERING:
// State is persisted before the notification is sent. A crash after the
// save but before delivery loses one notification; the reverse order could
// send the same notification twice. Flags are never rolled back when
// delivery fails.
//
// ISOLATION:
// Projects are independent. They may run in parallel (WithConcurrency) and
// a failure in one project never stops the others. Failures are collected
// in the Report and returned as a joined error once every project is done.
//
// RETRIES:
// Transport failures from the time source and the wiki are retried with
// exponential backoff (RetryConfig). Persistence failures are never retried
// and abort the project before anything is sent or written. Notifications
// are attempted exactly once per crossing.
package engine
