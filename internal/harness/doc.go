// Package harness runs sync scenarios against the real engine.
//
// A scenario describes a sequence of sync runs over simulated days: which
// hours get logged before each run, which collaborators fail, and what the
// run should have crossed. Every run goes through engine.Engine with an
// in-memory SQLite store, an in-memory time source and wiki, a recording
// notifier and a fixed clock, so the resulting trace is deterministic and
// can be compared against golden files.
//
// # Scenario Format
//
//	name: alpha_first_anniversary
//	description: "What this scenario validates"
//	start: 2025-06-30
//	projects: [Alpha]
//	pages:
//	  Alpha: "<p>Intro</p><hr />stale"
//	runs:
//	  - advance_days: 0
//	    log:
//	      - {project: Alpha, days_ago: 400, hours: 20}
//	    fail_source: {Beta: 5}
//	    fail_notify: false
//	    dry_run: false
//	    expect:
//	      crossed: {Alpha: [hours100, anniversary]}
//	      mails: 1
//	assertions:
//	  - type: final_state
//	    project: Alpha
//	    expect: {hours100: true, anniversary: true}
//
// # Assertion Types
//
//   - trace_contains: the project crossed the milestone in some run
//   - trace_order: the project crossed the milestones in this order
//   - trace_count: the project crossed the milestone exactly N times
//     (with no milestone: N notification attempts)
//   - final_state: stored flags and creation date of a project
//   - page_contains: the final page text of a space contains a string
package harness
