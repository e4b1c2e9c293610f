package report

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"

	"github.com/JonMunkholm/provisioner/internal/mail"
	"github.com/JonMunkholm/provisioner/internal/pipeline"
)

// Channel names a notification target.
type Channel string

const (
	// ChannelSummary carries the aggregate counts with both report files.
	ChannelSummary Channel = "summary"
	// ChannelCredentials carries generated credentials for new accounts.
	ChannelCredentials Channel = "credentials"
	// ChannelStakeholder lists newly created accounts without credentials.
	ChannelStakeholder Channel = "stakeholder"
)

// ChannelResult records how one notification channel settled.
type ChannelResult struct {
	Channel Channel
	OK      bool
	Err     error
}

// Notifier fans out the aggregate batch notifications.
type Notifier struct {
	sender      mail.Sender
	operator    string
	stakeholder string
}

// NewNotifier builds a Notifier. stakeholder may be empty, which disables
// the stakeholder digest.
func NewNotifier(sender mail.Sender, operator, stakeholder string) *Notifier {
	return &Notifier{sender: sender, operator: operator, stakeholder: stakeholder}
}

// Dispatch sends every applicable channel concurrently and settles them all:
// one channel's failure never short-circuits the others, and no failure
// propagates to the caller. The returned slice records each channel's fate
// for observability; failures are also logged.
//
// The credentials and stakeholder digests are sent only when the batch
// created at least one account.
func (n *Notifier) Dispatch(ctx context.Context, result *pipeline.Result, rep *Report) []ChannelResult {
	type job struct {
		channel Channel
		msg     mail.Message
	}

	jobs := []job{{
		channel: ChannelSummary,
		msg: mail.Message{
			To:      []string{n.operator},
			Subject: fmt.Sprintf("Import %s finished", result.BatchID),
			HTML:    summaryHTML(result),
			Attachments: []mail.Attachment{
				{Filename: rep.JSONName, Content: rep.JSON, ContentType: JSONMimeType},
				{Filename: rep.WorkbookName, Content: rep.Workbook, ContentType: WorkbookMimeType},
			},
		},
	}}

	if len(result.Created) > 0 {
		jobs = append(jobs, job{
			channel: ChannelCredentials,
			msg: mail.Message{
				To:      []string{n.operator},
				Subject: fmt.Sprintf("Import %s: credentials for %d new accounts", result.BatchID, len(result.Created)),
				HTML:    credentialsHTML(result.Created),
			},
		})

		if n.stakeholder != "" {
			jobs = append(jobs, job{
				channel: ChannelStakeholder,
				msg: mail.Message{
					To:      []string{n.stakeholder},
					Subject: fmt.Sprintf("%d new accounts provisioned", len(result.Created)),
					HTML:    stakeholderHTML(result.Created),
				},
			})
		}
	}

	results := make([]ChannelResult, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			err := n.sender.Send(ctx, j.msg)
			results[i] = ChannelResult{Channel: j.channel, OK: err == nil, Err: err}
			if err != nil {
				slog.Warn("notification channel failed",
					"channel", j.channel,
					"batch_id", result.BatchID,
					"error", err,
				)
			}
		}(i, j)
	}
	wg.Wait()

	return results
}

func summaryHTML(result *pipeline.Result) string {
	s := result.Summary()
	return fmt.Sprintf(`
		<h2>Import finished</h2>
		<p>Batch %s processed %d rows.</p>
		<ul>
			<li>Saved: %d</li>
			<li>Already existing: %d</li>
			<li>Errors: %d</li>
			<li>Welcome mail failures: %d</li>
		</ul>
		<p>The full per-row report is attached as JSON and as a workbook.</p>
	`, html.EscapeString(result.BatchID), s.Total, s.Saved, s.AlreadyExists, s.Errors, s.EmailDeliveryFailures)
}

func credentialsHTML(created []pipeline.CreatedAccount) string {
	var b strings.Builder
	b.WriteString("<h2>Generated credentials</h2>")
	b.WriteString("<p>One-time credentials for the accounts created in this batch. Users are prompted to change them at first sign-in.</p>")
	b.WriteString("<table border=\"1\" cellpadding=\"4\"><tr><th>Name</th><th>Email</th><th>Username</th><th>Temporary password</th></tr>")
	for _, a := range created {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			html.EscapeString(a.Name), html.EscapeString(a.Email),
			html.EscapeString(a.Username), html.EscapeString(a.Credential))
	}
	b.WriteString("</table>")
	return b.String()
}

func stakeholderHTML(created []pipeline.CreatedAccount) string {
	var b strings.Builder
	b.WriteString("<h2>New accounts</h2><ul>")
	for _, a := range created {
		fmt.Fprintf(&b, "<li>%s &lt;%s&gt; (%s)</li>",
			html.EscapeString(a.Name), html.EscapeString(a.Email), html.EscapeString(a.Role))
	}
	b.WriteString("</ul>")
	return b.String()
}
