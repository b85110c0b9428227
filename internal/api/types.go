package api

import "encoding/json"

// envelope is the backend's uniform response wrapper:
// { success, data, error: { code, message, ...extra }, timestamp }.
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *envelopeError  `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// envelopeError is the structured error payload. RetryAfter is in
// seconds and only present on rate-limit responses.
type envelopeError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// updateCountData is the data payload of mark-all-read and bulk-update
// responses.
type updateCountData struct {
	UpdatedCount int `json:"updatedCount"`
}

// bulkUpdateRequest is the body of PATCH /notifications/bulk-update.
type bulkUpdateRequest struct {
	IDs     []string    `json:"ids"`
	Updates interface{} `json:"updates"`
}
