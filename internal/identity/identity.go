// Package identity reconciles candidate users against the external identity
// provider: it creates accounts, recovers from already-exists collisions via
// lookup-by-email, and normalizes raw provider errors into a fixed taxonomy
// before any business logic sees them.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by LookupByEmail when no account matches.
var ErrNotFound = errors.New("identity: account not found")

// Account is a provisioned account in the external provider.
type Account struct {
	ID string
}

// NewAccount describes an account to be created.
type NewAccount struct {
	FirstName string
	LastName  string
	Email     string
	Role      string
}

// CreatedAccount is a freshly created account plus its one-time credentials.
type CreatedAccount struct {
	Account
	Username   string
	Credential string
}

// Provider is the external identity directory.
//
// CreateAccount failures carry a *ProviderError when the provider responded;
// transport failures are returned as-is.
type Provider interface {
	CreateAccount(ctx context.Context, acct NewAccount) (*CreatedAccount, error)
	LookupByEmail(ctx context.Context, email string) (*Account, error)
}

// ProviderError is a normalized provider failure. Raw status codes and
// message bodies are decoded into this shape at the adapter boundary.
type ProviderError struct {
	StatusCode int
	Message    string
	Kind       Kind
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider: %s (status %d)", e.Message, e.StatusCode)
}

// Result is the outcome of reconciling one row against the provider.
type Result struct {
	AccountID  string
	IsNew      bool
	Username   string
	Credential string
}

// Reconciler maps one candidate user to exactly one provider account,
// creating it if absent.
type Reconciler struct {
	provider Provider
}

// NewReconciler returns a Reconciler backed by the given provider.
func NewReconciler(p Provider) *Reconciler {
	return &Reconciler{provider: p}
}

// Reconcile attempts account creation, falling back to lookup-by-email when
// the provider signals the account already exists.
//
// An already-exists signal that the lookup cannot resolve is an explicit
// error, never a silent skip. Permission failures are reported distinctly
// because they usually indicate misconfiguration rather than a bad row.
// No retries happen here; retrying creation would only reproduce the
// already-exists path, and retrying a permission error is wasted budget.
func (r *Reconciler) Reconcile(ctx context.Context, acct NewAccount) (*Result, error) {
	created, err := r.provider.CreateAccount(ctx, acct)
	if err == nil {
		return &Result{
			AccountID:  created.ID,
			IsNew:      true,
			Username:   created.Username,
			Credential: created.Credential,
		}, nil
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		return nil, fmt.Errorf("create account: %w", err)
	}

	switch perr.Kind {
	case KindAlreadyExists:
		existing, lookupErr := r.provider.LookupByEmail(ctx, acct.Email)
		if errors.Is(lookupErr, ErrNotFound) {
			return nil, fmt.Errorf("account for %s reported as existing but lookup found nothing: %w", acct.Email, err)
		}
		if lookupErr != nil {
			return nil, fmt.Errorf("lookup existing account: %w", lookupErr)
		}
		return &Result{AccountID: existing.ID, IsNew: false}, nil

	case KindPermissionDenied:
		return nil, fmt.Errorf("access denied by identity provider (check credentials/permissions): %w", err)

	default:
		return nil, fmt.Errorf("create account: %w", err)
	}
}
