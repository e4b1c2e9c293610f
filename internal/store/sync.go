package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Subscription defaults applied on every import. Re-importing refreshes the
// subscription window; that is an intentional side effect, not drift.
const (
	planTypePremium    = "premium"
	statusActive       = "active"
	subscriptionMonths = 1
)

// Profile is the validated row data the synchronizer writes to the store.
type Profile struct {
	FirstName string
	LastName  string
	Email     string
	Role      string
	Phone     string
	Document  string
	Address   string
	Country   string
	City      string
}

// Synchronizer upserts local user records keyed by email.
type Synchronizer struct {
	users Users
	now   func() time.Time
}

// NewSynchronizer returns a Synchronizer over the given store.
func NewSynchronizer(users Users) *Synchronizer {
	return &Synchronizer{users: users, now: time.Now}
}

// Sync upserts the profile. An existing record keeps its durable ID and gets
// its mutable fields replaced; a new record is inserted under the reconciled
// account id. Returns true when a new record was inserted.
//
// Repeated imports of overlapping data converge to the same state, aside
// from the refreshed subscription window.
func (s *Synchronizer) Sync(ctx context.Context, p Profile, accountID string) (bool, error) {
	subscriptionEnd := s.now().AddDate(0, subscriptionMonths, 0)
	name := p.FirstName + " " + p.LastName

	existing, err := s.users.FindByEmail(ctx, p.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("sync lookup: %w", err)
	}

	if existing != nil {
		patch := Patch{
			Name:               name,
			Role:               p.Role,
			Phone:              p.Phone,
			Document:           p.Document,
			Address:            p.Address,
			Country:            p.Country,
			City:               p.City,
			PlanType:           planTypePremium,
			SubscriptionStatus: statusActive,
			SubscriptionEnd:    subscriptionEnd,
		}
		if err := s.users.Update(ctx, existing.ID, patch); err != nil {
			return false, fmt.Errorf("sync update: %w", err)
		}
		return false, nil
	}

	user := &User{
		ID:                 accountID,
		Name:               name,
		Email:              p.Email,
		Role:               p.Role,
		Phone:              p.Phone,
		Document:           p.Document,
		Address:            p.Address,
		Country:            p.Country,
		City:               p.City,
		PlanType:           planTypePremium,
		SubscriptionStatus: statusActive,
		SubscriptionEnd:    subscriptionEnd,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return false, fmt.Errorf("sync insert: %w", err)
	}
	return true, nil
}
