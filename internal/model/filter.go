package model

import "time"

// Sort field and order values accepted by the backend list endpoint.
const (
	SortByTimestamp = "timestamp"
	SortByPriority  = "priority"
	SortByType      = "type"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilter controls filtering for notification list queries. Nil
// fields are unset and omitted from the encoded query entirely.
type ListFilter struct {
	Type     *Type
	Read     *bool
	Priority *Priority
	DateFrom *time.Time
	DateTo   *time.Time
}

// ListOptions combines a filter with pagination and sorting.
type ListOptions struct {
	Filter    ListFilter
	Page      int
	Limit     int
	SortBy    string // timestamp, priority, or type
	SortOrder string // asc or desc
}

// ListResult holds a page of notifications returned by the backend.
type ListResult struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	UnreadCount   int            `json:"unreadCount"`
	HasMore       bool           `json:"hasMore"`
}

// UpdatePatch carries the mutable notification fields for generic and
// bulk updates. Nil fields are left untouched by the backend.
type UpdatePatch struct {
	Read      *bool     `json:"read,omitempty"`
	Priority  *Priority `json:"priority,omitempty"`
	Title     *string   `json:"title,omitempty"`
	Message   *string   `json:"message,omitempty"`
	ActionURL *string   `json:"actionUrl,omitempty"`
}
