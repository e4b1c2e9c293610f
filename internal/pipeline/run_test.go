package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/provisioner/internal/identity"
	"github.com/JonMunkholm/provisioner/internal/ingest"
	"github.com/JonMunkholm/provisioner/internal/store"
)

// fakeReconciler simulates a provider directory keyed by email.
type fakeReconciler struct {
	accounts map[string]string // email -> account id
	failOn   map[string]error  // email -> forced failure
	seq      int
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{
		accounts: make(map[string]string),
		failOn:   make(map[string]error),
	}
}

func (f *fakeReconciler) Reconcile(_ context.Context, acct identity.NewAccount) (*identity.Result, error) {
	if err := f.failOn[acct.Email]; err != nil {
		return nil, err
	}
	if id, ok := f.accounts[acct.Email]; ok {
		return &identity.Result{AccountID: id, IsNew: false}, nil
	}
	f.seq++
	id := fmt.Sprintf("user_%d", f.seq)
	f.accounts[acct.Email] = id
	return &identity.Result{
		AccountID:  id,
		IsNew:      true,
		Username:   identity.Username(acct.FirstName, acct.LastName),
		Credential: "generated-pass",
	}, nil
}

// fakeSync tracks upserts keyed by email.
type fakeSync struct {
	records map[string]string // email -> id
	failOn  map[string]error
	panicOn string
}

func newFakeSync() *fakeSync {
	return &fakeSync{records: make(map[string]string), failOn: make(map[string]error)}
}

func (f *fakeSync) Sync(_ context.Context, p store.Profile, accountID string) (bool, error) {
	if f.panicOn == p.Email {
		panic("storage corrupted")
	}
	if err := f.failOn[p.Email]; err != nil {
		return false, err
	}
	if _, ok := f.records[p.Email]; ok {
		return false, nil
	}
	f.records[p.Email] = accountID
	return true, nil
}

// fakeMailer records welcome sends and can fail for chosen recipients.
type fakeMailer struct {
	sent   []string
	failOn map[string]bool
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{failOn: make(map[string]bool)}
}

func (f *fakeMailer) SendWelcome(_ context.Context, email, _, _, _ string) bool {
	f.sent = append(f.sent, email)
	return !f.failOn[email]
}

func row(first, last, email, role string) ingest.Row {
	return ingest.Row{
		ingest.FieldFirstName: first,
		ingest.FieldLastName:  last,
		ingest.FieldEmail:     email,
		ingest.FieldRole:      role,
	}
}

// newOrchestrator builds an orchestrator with pacing disabled for tests.
func newOrchestrator(r Reconciler, s Synchronizer, m WelcomeSender) *Orchestrator {
	return NewOrchestrator(r, s, m, Options{PacingInterval: 1000, PacingDelay: 0})
}

func TestRun_FreshRowIsSaved(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	o := newOrchestrator(rec, sync, mailer)

	res, err := o.Run(context.Background(), []ingest.Row{
		row("Juan", "Pérez", "juan@x.com", "estudiante"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(res.Outcomes))
	}
	out := res.Outcomes[0]
	if out.Status != StatusSaved {
		t.Errorf("status = %v, want SAVED", out.Status)
	}
	if out.Email != "juan@x.com" {
		t.Errorf("email = %q, want lowercased input email", out.Email)
	}
	if len(res.Created) != 1 || res.Created[0].Credential == "" {
		t.Errorf("Created = %+v, want one account with a credential", res.Created)
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != "juan@x.com" {
		t.Errorf("welcome sends = %v, want one to juan@x.com", mailer.sent)
	}
	if res.BatchID == "" {
		t.Error("BatchID should be assigned")
	}
}

func TestRun_SecondRunIsAlreadyExists(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	o := newOrchestrator(rec, sync, mailer)

	rows := []ingest.Row{row("Juan", "Pérez", "juan@x.com", "estudiante")}

	if _, err := o.Run(context.Background(), rows); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	res, err := o.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	out := res.Outcomes[0]
	if out.Status != StatusAlreadyExists {
		t.Errorf("status = %v, want ALREADY_EXISTS", out.Status)
	}
	if out.Detail != "synchronized" {
		t.Errorf("detail = %q, want %q", out.Detail, "synchronized")
	}
	if len(res.Created) != 0 {
		t.Errorf("Created = %+v, want none on re-run", res.Created)
	}
	if len(mailer.sent) != 1 {
		t.Errorf("welcome sends = %d, want 1 (first run only)", len(mailer.sent))
	}
}

func TestRun_DisallowedRole(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	o := newOrchestrator(rec, sync, mailer)

	res, err := o.Run(context.Background(), []ingest.Row{
		row("Juan", "Pérez", "juan@x.com", "ceo"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := res.Outcomes[0]
	if out.Status != StatusError {
		t.Fatalf("status = %v, want ERROR", out.Status)
	}
	for _, role := range []string{"student", "educator", "admin", "super-admin"} {
		if !strings.Contains(out.Detail, role) {
			t.Errorf("detail should enumerate allowed role %q: %s", role, out.Detail)
		}
	}
	if len(rec.accounts) != 0 {
		t.Error("invalid row must never reach reconciliation")
	}
}

func TestRun_PermissionDeniedDetail(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	rec.failOn["juan@x.com"] = fmt.Errorf("access denied by identity provider (check credentials/permissions): %w",
		&identity.ProviderError{StatusCode: 403, Message: "forbidden", Kind: identity.KindPermissionDenied})
	o := newOrchestrator(rec, sync, mailer)

	res, err := o.Run(context.Background(), []ingest.Row{
		row("Juan", "Pérez", "juan@x.com", ""),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := res.Outcomes[0]
	if out.Status != StatusError {
		t.Fatalf("status = %v, want ERROR", out.Status)
	}
	if !strings.Contains(out.Detail, "access denied") {
		t.Errorf("detail = %q, want explicit access/permission mention", out.Detail)
	}
	if !strings.Contains(out.Detail, "reconcile") {
		t.Errorf("detail = %q, want failing phase name", out.Detail)
	}
}

func TestRun_EmailDeliveryFailureKeepsSaved(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	mailer.failOn["juan@x.com"] = true
	o := newOrchestrator(rec, sync, mailer)

	res, err := o.Run(context.Background(), []ingest.Row{
		row("Juan", "Pérez", "juan@x.com", ""),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := res.Outcomes[0]
	if out.Status != StatusSaved {
		t.Errorf("status = %v, want SAVED despite delivery failure", out.Status)
	}
	if !out.EmailDeliveryFailed {
		t.Error("EmailDeliveryFailed = false, want true")
	}
	if s := res.Summary(); s.EmailDeliveryFailures != 1 {
		t.Errorf("EmailDeliveryFailures = %d, want 1", s.EmailDeliveryFailures)
	}
}

func TestRun_RowIsolation(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	sync.failOn["three@x.com"] = errors.New("deadlock detected")
	o := newOrchestrator(rec, sync, mailer)

	var rows []ingest.Row
	for _, e := range []string{"one@x.com", "two@x.com", "three@x.com", "four@x.com", "five@x.com"} {
		rows = append(rows, row("A", "B", e, ""))
	}

	res, err := o.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Outcomes) != 5 {
		t.Fatalf("outcomes = %d, want 5", len(res.Outcomes))
	}
	for i, want := range []Status{StatusSaved, StatusSaved, StatusError, StatusSaved, StatusSaved} {
		if res.Outcomes[i].Status != want {
			t.Errorf("outcomes[%d].Status = %v, want %v", i, res.Outcomes[i].Status, want)
		}
	}
	if !strings.Contains(res.Outcomes[2].Detail, "sync") {
		t.Errorf("detail = %q, want sync phase name", res.Outcomes[2].Detail)
	}
}

func TestRun_PanicContainment(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	sync.panicOn = "boom@x.com"
	o := newOrchestrator(rec, sync, mailer)

	res, err := o.Run(context.Background(), []ingest.Row{
		row("A", "B", "boom@x.com", ""),
		row("A", "B", "fine@x.com", ""),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Outcomes[0].Status != StatusError {
		t.Errorf("status = %v, want ERROR for panicking row", res.Outcomes[0].Status)
	}
	if !strings.Contains(res.Outcomes[0].Detail, "sync") || !strings.Contains(res.Outcomes[0].Detail, "panic") {
		t.Errorf("detail = %q, want phase and panic marker", res.Outcomes[0].Detail)
	}
	if res.Outcomes[1].Status != StatusSaved {
		t.Errorf("status = %v, panic must not abort the batch", res.Outcomes[1].Status)
	}
}

func TestRun_OrderPreservedAndPlaceholders(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	o := newOrchestrator(rec, sync, mailer)

	rows := []ingest.Row{
		row("A", "B", "first@x.com", ""),
		row("A", "B", "", ""), // no email -> placeholder
		row("A", "B", "third@x.com", ""),
	}

	res, err := o.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Outcomes) != len(rows) {
		t.Fatalf("outcomes = %d, want %d", len(res.Outcomes), len(rows))
	}
	if res.Outcomes[0].Email != "first@x.com" || res.Outcomes[2].Email != "third@x.com" {
		t.Errorf("outcome order does not match input order: %+v", res.Outcomes)
	}
	if res.Outcomes[1].Email != "row-2" {
		t.Errorf("placeholder = %q, want row-2", res.Outcomes[1].Email)
	}
	if res.Outcomes[1].Status != StatusError {
		t.Errorf("status = %v, want ERROR for missing email", res.Outcomes[1].Status)
	}
}

func TestRun_SummaryConsistency(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	rec.failOn["bad@x.com"] = errors.New("provider down")
	o := newOrchestrator(rec, sync, mailer)

	rows := []ingest.Row{
		row("A", "B", "one@x.com", ""),
		row("A", "B", "one@x.com", ""), // duplicate in batch
		row("A", "B", "bad@x.com", ""),
		row("A", "B", "", ""),
		row("A", "B", "two@x.com", ""),
	}

	res, err := o.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	s := res.Summary()
	if s.Total != len(res.Outcomes) {
		t.Errorf("Total = %d, want %d", s.Total, len(res.Outcomes))
	}
	if s.Saved+s.AlreadyExists+s.Errors != s.Total {
		t.Errorf("counters %d+%d+%d do not add up to %d", s.Saved, s.AlreadyExists, s.Errors, s.Total)
	}
	// Duplicate email resolves deterministically in file order
	if res.Outcomes[0].Status != StatusSaved || res.Outcomes[1].Status != StatusAlreadyExists {
		t.Errorf("duplicate handling = %v then %v, want SAVED then ALREADY_EXISTS",
			res.Outcomes[0].Status, res.Outcomes[1].Status)
	}
}

func TestRun_PacingRespectsContext(t *testing.T) {
	rec, sync, mailer := newFakeReconciler(), newFakeSync(), newFakeMailer()
	o := NewOrchestrator(rec, sync, mailer, Options{PacingInterval: 1, PacingDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, []ingest.Row{
		row("A", "B", "one@x.com", ""),
		row("A", "B", "two@x.com", ""),
	})
	if err == nil {
		t.Fatal("Run() expected error when cancelled during pacing pause")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
