// Package pipeline orchestrates a batch import: per-row validation,
// identity reconciliation, local store sync, and credential delivery, with
// each row fully isolated so one failure never aborts the batch.
package pipeline

// Status is the terminal per-row classification.
type Status string

const (
	StatusSaved         Status = "SAVED"
	StatusAlreadyExists Status = "ALREADY_EXISTS"
	StatusError         Status = "ERROR"
)

// RowOutcome is the result of processing one input row. The outcome
// sequence preserves input order and has exactly one entry per row.
type RowOutcome struct {
	Email               string `json:"email"`
	Status              Status `json:"status"`
	Detail              string `json:"detail,omitempty"`
	EmailDeliveryFailed bool   `json:"emailDeliveryFailed,omitempty"`
}

// CreatedAccount is one account freshly provisioned during the batch,
// retained for the credentials and stakeholder digests.
type CreatedAccount struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Username   string `json:"username"`
	Credential string `json:"-"`
}

// Result is the full outcome of one batch run.
type Result struct {
	BatchID  string
	Outcomes []RowOutcome
	Created  []CreatedAccount
}

// Summary holds the aggregate counters for a batch.
type Summary struct {
	Total                 int `json:"total"`
	Saved                 int `json:"saved"`
	AlreadyExists         int `json:"alreadyExists"`
	Errors                int `json:"errors"`
	EmailDeliveryFailures int `json:"emailDeliveryFailures"`
}

// Summary derives the aggregate counters from the outcome list. Counters
// are never maintained independently, so they cannot drift.
func (r *Result) Summary() Summary {
	s := Summary{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSaved:
			s.Saved++
		case StatusAlreadyExists:
			s.AlreadyExists++
		case StatusError:
			s.Errors++
		}
		if o.EmailDeliveryFailed {
			s.EmailDeliveryFailures++
		}
	}
	return s
}
