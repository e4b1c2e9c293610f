package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/provisioner/internal/ingest"
	"github.com/JonMunkholm/provisioner/internal/store"
)

// Permissive local@domain.tld shape; accented locals are tolerated.
var emailRx = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// roleDefault is assigned when the role column is empty.
const roleDefault = "student"

// roleSynonyms maps accepted spellings to canonical role names.
var roleSynonyms = map[string]string{
	"student":     "student",
	"estudiante":  "student",
	"educator":    "educator",
	"educador":    "educator",
	"admin":       "admin",
	"super-admin": "super-admin",
}

// canonicalRoles is the closed set a validated row may carry.
var canonicalRoles = map[string]bool{
	"student":     true,
	"educator":    true,
	"admin":       true,
	"super-admin": true,
}

const allowedRolesList = "student, educator, admin, super-admin"

// Candidate is one sanitized row awaiting validation.
type Candidate struct {
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

// Sanitize trims every mapped field, lowercases the email, and
// canonicalizes the role. An empty role defaults to student; an unknown
// spelling is kept verbatim for Validate to reject.
func Sanitize(row ingest.Row) Candidate {
	get := func(field string) string { return strings.TrimSpace(row[field]) }

	c := Candidate{
		FirstName: get(ingest.FieldFirstName),
		LastName:  get(ingest.FieldLastName),
		Email:     strings.ToLower(get(ingest.FieldEmail)),
		Role:      get(ingest.FieldRole),
		Phone:     get(ingest.FieldPhone),
		Document:  get(ingest.FieldDocument),
		Address:   get(ingest.FieldAddress),
		Country:   get(ingest.FieldCountry),
		City:      get(ingest.FieldCity),
	}

	if c.Role == "" {
		c.Role = roleDefault
	} else if canonical, ok := roleSynonyms[strings.ToLower(c.Role)]; ok {
		c.Role = canonical
	}

	return c
}

// Validate applies the row rules in order, short-circuiting on the first
// violation: required fields, email shape, role allow-list.
func (c Candidate) Validate() error {
	if c.FirstName == "" || c.LastName == "" || c.Email == "" {
		return errors.New("missing required fields (firstName, lastName, email)")
	}
	if !emailRx.MatchString(c.Email) {
		return fmt.Errorf("malformed email %q", c.Email)
	}
	if !canonicalRoles[c.Role] {
		return fmt.Errorf("role %q not allowed (%s)", c.Role, allowedRolesList)
	}
	return nil
}

// DisplayName is the full name used in welcome mail and digests.
func (c Candidate) DisplayName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Profile converts the candidate into the store's write shape.
func (c Candidate) Profile() store.Profile {
	return store.Profile{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Role:      c.Role,
		Phone:     c.Phone,
		Document:  c.Document,
		Address:   c.Address,
		Country:   c.Country,
		City:      c.City,
	}
}
