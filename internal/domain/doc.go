// Package domain provides the shared types for timelogbot.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import domain; domain imports nothing internal.
//
// Key design constraints:
//   - Dates are calendar days in UTC (see Day); wall-clock time of day is dropped
//   - A zero creation date means "indeterminate" (no entries observed yet)
//   - Milestone flags only ever go from false to true
//   - All JSON tags use snake_case
package domain
