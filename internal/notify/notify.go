// Package notify dispatches per-file failure notifications (spec.md §7(A))
// and operational webhook alerts (spec.md §4.10/§6), satisfying
// pipeline.Notifier.
package notify

import (
	"context"
	"fmt"
	"strings"

	"fileingest/internal/catalog"
	pipeerr "fileingest/internal/errors"
)

// EmailSender delivers a rendered subject/body to one recipient. Satisfied
// by SendEmail in this package.
type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// Dispatcher implements pipeline.Notifier over email, rendering one message
// per failed file and sending it to every recipient the source declares.
type Dispatcher struct {
	Email EmailSender
}

// NewDispatcher builds a Dispatcher bound to one EmailSender.
func NewDispatcher(sender EmailSender) *Dispatcher {
	return &Dispatcher{Email: sender}
}

// NotifyFileFailure renders and sends pipeerr's message to every recipient
// declared on source. Any recipient's delivery failure fails the whole call,
// matching spec.md §7(A)'s all-or-nothing handled/unhandled distinction.
func (d *Dispatcher) NotifyFileFailure(ctx context.Context, source catalog.DeclaredSource, filename string, perr *pipeerr.PipelineError) error {
	if len(source.NotificationRecipients) == 0 {
		return fmt.Errorf("no notification recipients configured for source %s", source.Name)
	}
	subject := fmt.Sprintf("[ingest] %s failed: %s", filename, perr.Kind)
	body := renderBody(filename, perr)

	var errs []string
	for _, to := range source.NotificationRecipients {
		if err := d.Email.SendEmail(to, subject, body); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", to, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to notify %d/%d recipients: %s", len(errs), len(source.NotificationRecipients), strings.Join(errs, "; "))
	}
	return nil
}

func renderBody(filename string, perr *pipeerr.PipelineError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>File <b>%s</b> failed during ingestion.</p>", filename)
	fmt.Fprintf(&b, "<p>Error kind: %s</p>", perr.Kind)
	fmt.Fprintf(&b, "<p>Message: %s</p>", perr.Message)
	if perr.Cause != nil {
		fmt.Fprintf(&b, "<p>Cause: %v</p>", perr.Cause)
	}
	if len(perr.Details) > 0 {
		b.WriteString("<ul>")
		for k, v := range perr.Details {
			fmt.Fprintf(&b, "<li>%s: %v</li>", k, v)
		}
		b.WriteString("</ul>")
	}
	return b.String()
}
