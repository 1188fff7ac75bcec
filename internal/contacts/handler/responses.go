package handler

import "contactdir/internal/contacts"

// ContactsResponse lists the directory.
type ContactsResponse struct {
	Contacts []contacts.Contact `json:"contacts"`
}

// ContactResponse reports a created or updated contact.
type ContactResponse struct {
	Success bool             `json:"success"`
	Contact contacts.Contact `json:"contact"`
}

// SuccessResponse is the body of a successful delete.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// DuplicatesResponse lists candidate duplicate pairs.
type DuplicatesResponse struct {
	Duplicates []contacts.DuplicatePair `json:"duplicates"`
}

// RemovalResult is one entry in a bulk removal response. Result is either
// {"success": true} or {"error": "..."}.
type RemovalResult struct {
	EditURL string        `json:"edit_url"`
	Result  RemovalStatus `json:"result"`
}

// RemovalStatus is the per-URL outcome.
type RemovalStatus struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RemoveDuplicatesResponse reports every attempted removal in request order.
type RemoveDuplicatesResponse struct {
	Results []RemovalResult `json:"results"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
	Domain string `json:"domain"`
	Error  string `json:"error,omitempty"`
}
