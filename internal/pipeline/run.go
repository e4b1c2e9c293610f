package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/provisioner/internal/identity"
	"github.com/JonMunkholm/provisioner/internal/ingest"
	"github.com/JonMunkholm/provisioner/internal/logging"
	"github.com/JonMunkholm/provisioner/internal/store"
)

// Reconciler maps a candidate to exactly one provider account.
type Reconciler interface {
	Reconcile(ctx context.Context, acct identity.NewAccount) (*identity.Result, error)
}

// Synchronizer upserts the local user record, reporting whether a new
// record was inserted.
type Synchronizer interface {
	Sync(ctx context.Context, p store.Profile, accountID string) (bool, error)
}

// WelcomeSender delivers one-time credentials, retrying internally.
type WelcomeSender interface {
	SendWelcome(ctx context.Context, email, displayName, username, credential string) bool
}

// Options tune batch pacing. Zero values fall back to the defaults the
// identity provider's rate limit was measured against.
type Options struct {
	// PacingInterval is the number of rows processed between pauses.
	PacingInterval int
	// PacingDelay is the pause inserted after each interval.
	PacingDelay time.Duration
}

const (
	defaultPacingInterval = 10
	defaultPacingDelay    = 700 * time.Millisecond
)

// Orchestrator drives the per-row state machine sequentially over a batch.
type Orchestrator struct {
	reconciler Reconciler
	sync       Synchronizer
	mailer     WelcomeSender
	opts       Options
}

// NewOrchestrator wires the per-row collaborators together.
func NewOrchestrator(r Reconciler, s Synchronizer, m WelcomeSender, opts Options) *Orchestrator {
	if opts.PacingInterval <= 0 {
		opts.PacingInterval = defaultPacingInterval
	}
	if opts.PacingDelay < 0 {
		opts.PacingDelay = defaultPacingDelay
	}
	return &Orchestrator{reconciler: r, sync: s, mailer: m, opts: opts}
}

// Run processes the rows sequentially in input order. Each row's failure is
// contained to that row; the only request-level errors are context
// cancellation during a pacing pause.
//
// Rows are processed one at a time so reconciliation order matches file
// order and duplicate emails within a batch resolve deterministically.
func (o *Orchestrator) Run(ctx context.Context, rows []ingest.Row) (*Result, error) {
	result := &Result{
		BatchID:  uuid.NewString(),
		Outcomes: make([]RowOutcome, 0, len(rows)),
	}

	logger := logging.WithFields(ctx, "batch_id", result.BatchID, "rows", len(rows))
	logger.Info("batch started")

	for i, row := range rows {
		outcome, created := o.processRow(ctx, i+1, row)
		result.Outcomes = append(result.Outcomes, outcome)
		if created != nil {
			result.Created = append(result.Created, *created)
		}

		if outcome.Status == StatusError {
			logger.Warn("row failed", "row", i+1, "email", outcome.Email, "detail", outcome.Detail)
		}

		// Pause after every Nth row to stay under the provider rate limit
		if (i+1)%o.opts.PacingInterval == 0 && i+1 < len(rows) {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("batch interrupted after %d rows: %w", i+1, ctx.Err())
			case <-time.After(o.opts.PacingDelay):
			}
		}
	}

	s := result.Summary()
	logger.Info("batch finished",
		"saved", s.Saved,
		"already_exists", s.AlreadyExists,
		"errors", s.Errors,
		"email_failures", s.EmailDeliveryFailures,
	)
	return result, nil
}

// processRow runs one row through validate, reconcile, sync, and dispatch.
// Any panic or error downgrades the row to ERROR with the failing phase in
// the detail; it never propagates to the batch loop.
func (o *Orchestrator) processRow(ctx context.Context, index int, row ingest.Row) (outcome RowOutcome, created *CreatedAccount) {
	cand := Sanitize(row)

	outcome.Email = cand.Email
	if outcome.Email == "" {
		outcome.Email = fmt.Sprintf("row-%d", index)
	}

	phase := "validate"
	defer func() {
		if r := recover(); r != nil {
			outcome.Status = StatusError
			outcome.Detail = fmt.Sprintf("%s: panic: %v", phase, r)
			outcome.EmailDeliveryFailed = false
			created = nil
		}
	}()

	if err := cand.Validate(); err != nil {
		outcome.Status = StatusError
		outcome.Detail = err.Error()
		return
	}

	phase = "reconcile"
	rec, err := o.reconciler.Reconcile(ctx, identity.NewAccount{
		FirstName: cand.FirstName,
		LastName:  cand.LastName,
		Email:     cand.Email,
		Role:      cand.Role,
	})
	if err != nil {
		outcome.Status = StatusError
		outcome.Detail = fmt.Sprintf("reconcile: %v", err)
		return
	}

	phase = "sync"
	inserted, err := o.sync.Sync(ctx, cand.Profile(), rec.AccountID)
	if err != nil {
		outcome.Status = StatusError
		outcome.Detail = fmt.Sprintf("sync: %v", err)
		return
	}

	if inserted {
		outcome.Status = StatusSaved
	} else {
		outcome.Status = StatusAlreadyExists
		outcome.Detail = "synchronized"
	}

	// Welcome mail only for freshly created accounts; delivery failure is
	// not a row error, the provisioning itself succeeded.
	phase = "dispatch"
	if rec.IsNew && rec.Credential != "" {
		delivered := o.mailer.SendWelcome(ctx, cand.Email, cand.DisplayName(), rec.Username, rec.Credential)
		if !delivered {
			outcome.EmailDeliveryFailed = true
		}
		created = &CreatedAccount{
			Name:       cand.DisplayName(),
			Email:      cand.Email,
			Role:       cand.Role,
			Username:   rec.Username,
			Credential: rec.Credential,
		}
	}

	return
}
