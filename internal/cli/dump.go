package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/natefinch/atomic"

	"github.com/roach88/timelogbot/internal/engine"
)

// dumpEntry is one time entry in the dump file.
type dumpEntry struct {
	Date  string  `json:"date"`
	Hours float64 `json:"hours"`
}

// writeDump writes the time entries of every project that was aggregated,
// keyed by project name. The file is replaced atomically so a concurrent
// reader never sees a partial dump.
func writeDump(path string, report *engine.Report) error {
	units := make(map[string][]dumpEntry, len(report.Projects))
	for _, p := range report.Projects {
		if p.Entries == nil && p.Err != nil {
			continue
		}
		entries := make([]dumpEntry, 0, len(p.Entries))
		for _, e := range p.Entries {
			entries = append(entries, dumpEntry{Date: e.Date.Format("2006-01-02"), Hours: e.Hours})
		}
		units[p.Project] = entries
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(units); err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return atomic.WriteFile(path, &buf)
}
