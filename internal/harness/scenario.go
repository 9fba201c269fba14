package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/timelogbot/internal/domain"
)

// Scenario defines a sequence of sync runs and the expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the date of the first run (YYYY-MM-DD).
	Start string `yaml:"start"`

	// Projects is the project list handed to every run.
	Projects []string `yaml:"projects"`

	// SpacePrefix and Separator configure the engine.
	SpacePrefix string `yaml:"space_prefix,omitempty"`
	Separator   string `yaml:"separator,omitempty"`

	// Pages seeds the wiki before the first run, keyed by space name.
	Pages map[string]string `yaml:"pages,omitempty"`

	// Info seeds project metadata (start date, budget).
	Info map[string]InfoStep `yaml:"info,omitempty"`

	// Runs are executed in order.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the trace and final state after all runs.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is the fixed run id stamped on every run.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// InfoStep is project metadata in a scenario.
type InfoStep struct {
	StartDate string  `yaml:"start_date,omitempty"`
	Budget    float64 `yaml:"budget,omitempty"`
}

// LogStep logs hours against a project, DaysAgo days before the run date.
type LogStep struct {
	Project string  `yaml:"project"`
	DaysAgo int     `yaml:"days_ago"`
	Hours   float64 `yaml:"hours"`
}

// RunStep is one sync run.
type RunStep struct {
	// AdvanceDays moves the clock forward before the run.
	AdvanceDays int `yaml:"advance_days,omitempty"`

	// Log adds time entries before the run.
	Log []LogStep `yaml:"log,omitempty"`

	// FailSource makes the time source fail with a transport error for the
	// given number of calls per project (negative: every call).
	FailSource map[string]int `yaml:"fail_source,omitempty"`

	// FailNotify makes every delivery in this run fail.
	FailNotify bool `yaml:"fail_notify,omitempty"`

	DryRun bool `yaml:"dry_run,omitempty"`
	Force  bool `yaml:"force,omitempty"`

	// Expect checks the run's crossings and notification attempts.
	Expect *RunExpect `yaml:"expect,omitempty"`
}

// RunExpect specifies the expected outcome of one run.
type RunExpect struct {
	// Crossed maps project to the milestones it must cross in this run.
	// Projects not listed must cross nothing.
	Crossed map[string][]string `yaml:"crossed,omitempty"`

	// Mails is the number of notification attempts in this run.
	Mails int `yaml:"mails"`

	// Failed lists projects expected to fail this run.
	Failed []string `yaml:"failed,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Project   string   `yaml:"project,omitempty"`
	Milestone string   `yaml:"milestone,omitempty"`
	Order     []string `yaml:"order,omitempty"`
	Count     int      `yaml:"count,omitempty"`

	// Expect holds final_state fields: hours100, hours300, anniversary
	// (bool) and creation_date (YYYY-MM-DD).
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Space and Text are used by page_contains.
	Space string `yaml:"space,omitempty"`
	Text  string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertPageContains  = "page_contains"
)

const dateLayout = "2006-01-02"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// startTime returns the scenario start as a UTC instant at 06:00, the time
// the bot usually runs.
func (s *Scenario) startTime() (time.Time, error) {
	day, err := time.Parse(dateLayout, s.Start)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(6 * time.Hour), nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.startTime(); err != nil {
		return fmt.Errorf("start must be a YYYY-MM-DD date: %q", s.Start)
	}
	if len(s.Projects) == 0 {
		return fmt.Errorf("projects list is required and must be non-empty")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for project, info := range s.Info {
		if info.StartDate == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, info.StartDate); err != nil {
			return fmt.Errorf("info[%s]: start_date must be a YYYY-MM-DD date", project)
		}
	}

	for i, run := range s.Runs {
		if run.AdvanceDays < 0 {
			return fmt.Errorf("runs[%d]: advance_days must be non-negative", i)
		}
		for j, l := range run.Log {
			if l.Project == "" {
				return fmt.Errorf("runs[%d].log[%d]: project is required", i, j)
			}
			if l.DaysAgo < 0 {
				return fmt.Errorf("runs[%d].log[%d]: days_ago must be non-negative", i, j)
			}
		}
		if run.Expect != nil {
			for project, ms := range run.Expect.Crossed {
				for _, m := range ms {
					if _, err := domain.ParseMilestone(m); err != nil {
						return fmt.Errorf("runs[%d].expect.crossed[%s]: %w", i, project, err)
					}
				}
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Project == "" || a.Milestone == "" {
			return fmt.Errorf("assertions[%d]: project and milestone are required for trace_contains", index)
		}
	case AssertTraceOrder:
		if a.Project == "" || len(a.Order) == 0 {
			return fmt.Errorf("assertions[%d]: project and order are required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Project == "" {
			return fmt.Errorf("assertions[%d]: project is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Project == "" {
			return fmt.Errorf("assertions[%d]: project is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertPageContains:
		if a.Space == "" || a.Text == "" {
			return fmt.Errorf("assertions[%d]: space and text are required for page_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
