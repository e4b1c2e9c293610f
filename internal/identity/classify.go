package identity

import "strings"

// Kind classifies a provider failure.
type Kind int

const (
	// KindFatal is any failure that terminates processing of the row.
	KindFatal Kind = iota
	// KindAlreadyExists means the account exists; recover via lookup.
	KindAlreadyExists
	// KindPermissionDenied means the call was rejected for authorization
	// reasons, usually a systemic misconfiguration rather than a row defect.
	KindPermissionDenied
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyExists:
		return "already_exists"
	case KindPermissionDenied:
		return "permission_denied"
	default:
		return "fatal"
	}
}

// alreadyExistsHints are message fragments providers use for duplicate
// accounts when the status code alone is ambiguous. Substring matching on
// free-text messages is brittle against wording changes; it lives in this
// one function so it can be extended without touching orchestration code.
var alreadyExistsHints = []string{
	"already exist",
	"identifier in use",
	"email taken",
}

// Classify maps a provider status code and error message to a Kind.
// Duplicate-account signals decide first, so a 403 whose body reports an
// existing account still recovers via lookup; only then do 401/403 mark the
// systemic permission failure.
func Classify(status int, message string) Kind {
	if status == 409 || status == 422 {
		return KindAlreadyExists
	}

	m := strings.ToLower(message)
	for _, hint := range alreadyExistsHints {
		if strings.Contains(m, hint) {
			return KindAlreadyExists
		}
	}

	if status == 401 || status == 403 {
		return KindPermissionDenied
	}

	return KindFatal
}
