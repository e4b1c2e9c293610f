package mail

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"
)

// Dispatcher sends welcome mail with one-time credentials, retrying
// transient failures up to a fixed bound.
type Dispatcher struct {
	sender   Sender
	attempts int
	delay    time.Duration
}

// NewDispatcher builds a Dispatcher. attempts must be at least 1.
func NewDispatcher(sender Sender, attempts int, delay time.Duration) *Dispatcher {
	if attempts < 1 {
		attempts = 1
	}
	return &Dispatcher{sender: sender, attempts: attempts, delay: delay}
}

// SendWelcome delivers the credentials message, retrying up to the
// configured bound with a fixed inter-attempt delay. Returns true when a
// send succeeded. Delivery failure is never fatal to the caller; the
// account and local record already exist.
func (d *Dispatcher) SendWelcome(ctx context.Context, email, displayName, username, credential string) bool {
	msg := Message{
		To:      []string{email},
		Subject: "Welcome - Your access credentials",
		HTML:    welcomeHTML(displayName, email, username, credential),
	}

	for attempt := 1; attempt <= d.attempts; attempt++ {
		err := d.sender.Send(ctx, msg)
		if err == nil {
			slog.Debug("welcome email sent", "to", email, "attempt", attempt)
			return true
		}

		slog.Warn("welcome email attempt failed",
			"to", email,
			"attempt", attempt,
			"of", d.attempts,
			"error", err,
		)

		if attempt == d.attempts {
			break
		}
		// ctx.Err is checked explicitly around the wait: when the
		// context is already cancelled both select cases are ready and
		// the winner would be random.
		if ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d.delay):
			if ctx.Err() != nil {
				return false
			}
		}
	}

	return false
}

// welcomeHTML renders the credentials message body.
func welcomeHTML(displayName, email, username, credential string) string {
	name := html.EscapeString(displayName)
	return fmt.Sprintf(`
		<h2>Welcome, %s!</h2>
		<p>Your account has been created. These are your provisional credentials:</p>
		<ul>
			<li><strong>Username:</strong> %s</li>
			<li><strong>Email:</strong> %s</li>
			<li><strong>Temporary password:</strong> %s</li>
		</ul>
		<p>For your security, please sign in and change this password as soon as possible.</p>
		<hr>
		<small>This message was generated automatically.</small>
	`, name, html.EscapeString(username), html.EscapeString(email), html.EscapeString(credential))
}
