// Package contacts holds the shared-contact entity model.
//
// Contact is what the directory service hands back (every email and phone on
// the entry). Draft is what callers submit when creating or replacing a
// contact (one primary email, one phone, a side list of extra addresses). The
// wire format only round-trips the Draft subset.
package contacts

import "strings"

// Email is one gd:email record on a decoded entry.
type Email struct {
	Address     string `json:"address"`
	Primary     bool   `json:"primary"`
	Relation    string `json:"rel"`
	DisplayName string `json:"display_name,omitempty"`
}

// Phone is one gd:phoneNumber record on a decoded entry.
type Phone struct {
	Number   string `json:"number"`
	Primary  bool   `json:"primary"`
	Relation string `json:"rel"`
}

// Address is a structured postal address. All fields default to empty.
type Address struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

// Contact is a shared contact as the remote directory reports it.
type Contact struct {
	ID        string   `json:"id"`
	EditURL   string   `json:"edit_url,omitempty"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	FullName  string   `json:"full_name"`
	Notes     string   `json:"notes"`
	Emails    []Email  `json:"emails"`
	Phones    []Phone  `json:"phones"`
	Address   *Address `json:"address,omitempty"`
}

// PrimaryEmail returns the address flagged primary, else the first address,
// else the empty string.
func (c Contact) PrimaryEmail() string {
	for _, e := range c.Emails {
		if e.Primary {
			return e.Address
		}
	}
	if len(c.Emails) > 0 {
		return c.Emails[0].Address
	}
	return ""
}

// NormalizedName is "{first} {last}" trimmed and lowercased.
func (c Contact) NormalizedName() string {
	return strings.ToLower(JoinName(c.FirstName, c.LastName))
}

// Draft is the caller-supplied shape used to create or replace a contact.
type Draft struct {
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	FullName         string   `json:"full_name,omitempty"`
	Notes            string   `json:"notes"`
	Email            string   `json:"email"`
	DisplayName      string   `json:"display_name,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	AdditionalEmails []string `json:"additional_emails,omitempty"`
	Address          *Address `json:"address,omitempty"`
}

// ResolvedFullName returns FullName when set, otherwise the joined first and
// last names.
func (d Draft) ResolvedFullName() string {
	if d.FullName != "" {
		return d.FullName
	}
	return JoinName(d.FirstName, d.LastName)
}

// ResolvedDisplayName falls back to the primary email address.
func (d Draft) ResolvedDisplayName() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Email
}

// DuplicatePair is two contacts whose similarity met the detection threshold.
type DuplicatePair struct {
	ContactA   Contact `json:"contact1"`
	ContactB   Contact `json:"contact2"`
	Similarity float64 `json:"similarity"`
}

// JoinName builds "{first} {last}" with surrounding whitespace trimmed.
func JoinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
