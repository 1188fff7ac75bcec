package handler

import (
	"strings"

	"contactdir/internal/contacts"
	dErrors "contactdir/pkg/domain-errors"
	strutil "contactdir/pkg/platform/strings"
)

const (
	maxNameLength    = 256
	maxEmailLength   = 320
	maxNotesLength   = 10_000
	maxExtraEmails   = 20
	maxEditURLLength = 2048
	maxBulkRemovals  = 500
)

// ContactRequest is the JSON body of POST /api/contacts.
type ContactRequest struct {
	contacts.Draft
}

// Normalize trims fields and collapses repeated additional emails.
func (r *ContactRequest) Normalize() {
	if r == nil {
		return
	}
	normalizeDraft(&r.Draft)
}

// Validate implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ContactRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return validateDraft(r.Draft)
}

// UpdateContactRequest is the JSON body of PUT /api/contacts/update.
type UpdateContactRequest struct {
	EditURL     string          `json:"edit_url"`
	ContactData *contacts.Draft `json:"contact_data"`
}

func (r *UpdateContactRequest) Normalize() {
	if r == nil {
		return
	}
	r.EditURL = strings.TrimSpace(r.EditURL)
	if r.ContactData != nil {
		normalizeDraft(r.ContactData)
	}
}

func (r *UpdateContactRequest) Validate() error {
	if r == nil || r.EditURL == "" || r.ContactData == nil {
		return dErrors.New(dErrors.CodeBadRequest, "missing edit_url or contact_data")
	}
	if len(r.EditURL) > maxEditURLLength {
		return dErrors.New(dErrors.CodeValidation, "edit_url is too long")
	}
	return validateDraft(*r.ContactData)
}

// DeleteContactRequest is the JSON body of DELETE /api/contacts/delete.
type DeleteContactRequest struct {
	EditURL string `json:"edit_url"`
}

func (r *DeleteContactRequest) Normalize() {
	if r != nil {
		r.EditURL = strings.TrimSpace(r.EditURL)
	}
}

func (r *DeleteContactRequest) Validate() error {
	if r == nil || r.EditURL == "" {
		return dErrors.New(dErrors.CodeBadRequest, "missing edit_url")
	}
	if len(r.EditURL) > maxEditURLLength {
		return dErrors.New(dErrors.CodeValidation, "edit_url is too long")
	}
	return nil
}

// RemoveDuplicatesRequest is the JSON body of POST /api/duplicates/remove.
type RemoveDuplicatesRequest struct {
	DuplicateIDs []string `json:"duplicate_ids"`
}

// Normalize drops blank and repeated edit URLs so each contact is deleted once.
func (r *RemoveDuplicatesRequest) Normalize() {
	if r != nil {
		r.DuplicateIDs = strutil.DedupeAndTrim(r.DuplicateIDs)
	}
}

func (r *RemoveDuplicatesRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.DuplicateIDs) > maxBulkRemovals {
		return dErrors.New(dErrors.CodeValidation, "too many duplicate_ids in one request")
	}
	for _, u := range r.DuplicateIDs {
		if len(u) > maxEditURLLength {
			return dErrors.New(dErrors.CodeValidation, "edit URL is too long")
		}
	}
	return nil
}

func normalizeDraft(d *contacts.Draft) {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.FullName = strings.TrimSpace(d.FullName)
	d.Email = strings.TrimSpace(d.Email)
	d.DisplayName = strings.TrimSpace(d.DisplayName)
	d.Phone = strings.TrimSpace(d.Phone)
	d.AdditionalEmails = strutil.DedupeEmails(d.AdditionalEmails)
}

func validateDraft(d contacts.Draft) error {
	if d.FirstName == "" && d.LastName == "" && d.FullName == "" && d.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "a name or email is required")
	}
	if len(d.FirstName) > maxNameLength || len(d.LastName) > maxNameLength || len(d.FullName) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name fields must be at most 256 characters")
	}
	if len(d.Notes) > maxNotesLength {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 10000 characters")
	}
	if len(d.AdditionalEmails) > maxExtraEmails {
		return dErrors.New(dErrors.CodeValidation, "too many additional_emails")
	}
	for _, e := range append([]string{d.Email}, d.AdditionalEmails...) {
		if e == "" {
			continue
		}
		if len(e) > maxEmailLength || !strings.Contains(e, "@") {
			return dErrors.New(dErrors.CodeValidation, "invalid email address: "+e)
		}
	}
	return nil
}
