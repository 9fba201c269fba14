package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/timelogbot/internal/domain"
)

// MemorySource is an in-memory time source.
//
// FailFor makes FetchEntries fail for a project with the given error for
// the next N calls (N < 0 means forever).
type MemorySource struct {
	mu       sync.Mutex
	entries  map[string][]domain.TimeEntry
	info     map[string]domain.ProjectInfo
	failures map[string]*failure
	calls    map[string]int
}

type failure struct {
	err       error
	remaining int
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		entries:  make(map[string][]domain.TimeEntry),
		info:     make(map[string]domain.ProjectInfo),
		failures: make(map[string]*failure),
		calls:    make(map[string]int),
	}
}

// Log appends an entry of hours on date to project.
func (s *MemorySource) Log(project string, date time.Time, hours float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[project] = append(s.entries[project], domain.TimeEntry{Project: project, Date: date, Hours: hours})
}

// SetInfo sets project metadata.
func (s *MemorySource) SetInfo(project string, info domain.ProjectInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info[project] = info
}

// FailFor injects err for the next n calls for project (n < 0: always).
func (s *MemorySource) FailFor(project string, err error, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[project] = &failure{err: err, remaining: n}
}

// Calls returns how many times FetchEntries was called for project.
func (s *MemorySource) Calls(project string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[project]
}

// FetchEntries implements aggregate.Source.
func (s *MemorySource) FetchEntries(_ context.Context, project string) ([]domain.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[project]++

	if f, ok := s.failures[project]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		return nil, f.err
	}

	out := make([]domain.TimeEntry, len(s.entries[project]))
	copy(out, s.entries[project])
	return out, nil
}

// FetchInfo implements aggregate.InfoSource.
func (s *MemorySource) FetchInfo(_ context.Context, project string) (domain.ProjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info[project], nil
}

// MemoryWiki is an in-memory wiki store keyed by space name.
type MemoryWiki struct {
	mu          sync.Mutex
	pages       map[string]string
	writes      map[string]int
	readErr     map[string]error
	writeErr    map[string]error
	writeErrCnt map[string]int
}

// NewMemoryWiki creates an empty wiki.
func NewMemoryWiki() *MemoryWiki {
	return &MemoryWiki{
		pages:       make(map[string]string),
		writes:      make(map[string]int),
		readErr:     make(map[string]error),
		writeErr:    make(map[string]error),
		writeErrCnt: make(map[string]int),
	}
}

// SetPage stores text as the page of space.
func (w *MemoryWiki) SetPage(space, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pages[space] = text
}

// Page returns the page of space and whether it exists.
func (w *MemoryWiki) Page(space string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	text, ok := w.pages[space]
	return text, ok
}

// Writes returns how many successful writes space received.
func (w *MemoryWiki) Writes(space string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes[space]
}

// FailReads makes every ReadPage of space fail with err.
func (w *MemoryWiki) FailReads(space string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readErr[space] = err
}

// FailWrites makes the next n WritePage calls of space fail with err
// (n < 0: always).
func (w *MemoryWiki) FailWrites(space string, err error, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writeErr[space] = err
	w.writeErrCnt[space] = n
}

// ReadPage implements engine.WikiStore.
func (w *MemoryWiki) ReadPage(_ context.Context, space string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.readErr[space]; err != nil {
		return "", err
	}
	text, ok := w.pages[space]
	if !ok {
		return "", domain.ErrPageNotFound
	}
	return text, nil
}

// WritePage implements engine.WikiStore.
func (w *MemoryWiki) WritePage(_ context.Context, space, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writeErr[space]; err != nil && w.writeErrCnt[space] != 0 {
		if w.writeErrCnt[space] > 0 {
			w.writeErrCnt[space]--
		}
		return err
	}
	w.pages[space] = text
	w.writes[space]++
	return nil
}

// Mail is one message captured by RecordingNotifier.
type Mail struct {
	Recipients []string
	Subject    string
	Body       string
}

// RecordingNotifier captures sent messages instead of delivering them.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Mail
	err  error
}

// NewRecordingNotifier creates a notifier that records messages.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// FailWith makes every Send return err. The message is still recorded as
// attempted.
func (n *RecordingNotifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Sent returns a copy of all recorded messages.
func (n *RecordingNotifier) Sent() []Mail {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Mail, len(n.sent))
	copy(out, n.sent)
	return out
}

// Send implements notify.Notifier.
func (n *RecordingNotifier) Send(_ context.Context, recipients []string, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Mail{Recipients: recipients, Subject: subject, Body: body})
	return n.err
}
