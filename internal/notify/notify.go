// Package notify builds milestone notifications and hands them to a
// Notifier for delivery to a fixed recipient list.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/timelogbot/internal/domain"
	"github.com/roach88/timelogbot/internal/milestone"
)

// SubjectPrefix starts every notification subject.
const SubjectPrefix = "[TimeLog Bot]"

// Notifier delivers one message to a set of recipients.
type Notifier interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Dispatcher sends one combined notification per project per run.
type Dispatcher struct {
	notifier   Notifier
	recipients []string
}

// NewDispatcher creates a Dispatcher delivering to recipients via n.
// The recipient slice is copied.
func NewDispatcher(n Notifier, recipients []string) *Dispatcher {
	rcpt := make([]string, len(recipients))
	copy(rcpt, recipients)
	return &Dispatcher{notifier: n, recipients: rcpt}
}

// ErrNoRecipients is returned when a dispatch is attempted with an empty
// recipient list.
var ErrNoRecipients = errors.New("no notification recipients configured")

// Dispatch sends a single message describing every milestone newly
// crossed in res. It does nothing and returns nil when nothing fired.
func (d *Dispatcher) Dispatch(ctx context.Context, agg domain.Aggregate, res milestone.Result) error {
	if !res.Fired() {
		return nil
	}
	if len(d.recipients) == 0 {
		return ErrNoRecipients
	}

	msg := Compose(agg, res)
	if err := d.notifier.Send(ctx, d.recipients, msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("send notification for %q: %w", agg.Project, err)
	}
	return nil
}

// Compose renders the notification for the crossings in res.
func Compose(agg domain.Aggregate, res milestone.Result) Message {
	crossed := res.Crossed
	labels := make([]string, len(crossed))
	for i, m := range crossed {
		labels[i] = m.Describe()
	}

	subject := fmt.Sprintf("%s Checkpoint in project %s: %s",
		SubjectPrefix, agg.Project, strings.Join(labels, ", "))

	var b strings.Builder
	fmt.Fprintf(&b, "Project %s has reached the following checkpoint", agg.Project)
	if len(crossed) > 1 {
		b.WriteString("s")
	}
	b.WriteString(":\n\n")
	for _, l := range labels {
		fmt.Fprintf(&b, "  - %s\n", l)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%.1f working hours have been logged", agg.TotalHours)
	if agg.Budget > 0 {
		fmt.Fprintf(&b, " out of %.0f ordered", agg.Budget)
	}
	b.WriteString(".\n")
	if res.ElapsedDays >= 0 {
		fmt.Fprintf(&b, "%d calendar days have elapsed since %s.\n",
			res.ElapsedDays, res.State.CreationDate.Format("2006-01-02"))
	}

	return Message{Subject: subject, Body: b.String()}
}

// LogNotifier logs messages instead of sending them. Used for dry runs.
type LogNotifier struct {
	Logger *slog.Logger
}

// Send implements Notifier.
func (n LogNotifier) Send(_ context.Context, recipients []string, subject, body string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("dry-run: not sending e-mail",
		"to", strings.Join(recipients, ", "),
		"subject", subject,
		"body", body,
	)
	return nil
}
