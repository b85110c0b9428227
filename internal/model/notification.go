package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification by the kind of domain event that
// produced it. The set is closed: a notification carrying any other
// value fails validation.
type Type string

const (
	TypeUserRegistered    Type = "user_registered"
	TypePostPublished     Type = "post_published"
	TypeSystemError       Type = "system_error"
	TypeUserActivity      Type = "user_activity"
	TypeContentModeration Type = "content_moderation"
)

// ValidType reports whether t is a member of the closed type enumeration.
func ValidType(t Type) bool {
	switch t {
	case TypeUserRegistered, TypePostPublished, TypeSystemError,
		TypeUserActivity, TypeContentModeration:
		return true
	}
	return false
}

// Priority indicates how urgently a notification should be surfaced.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriority reports whether p is one of low, medium, or high.
func ValidPriority(p Priority) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Notification is an administrator-facing alert about activity in the
// system (registrations, publications, errors, moderation events).
type Notification struct {
	// ID is the unique identifier. Server-assigned for records created
	// by the backend; client-generated via NewID for synthesized ones.
	ID string `json:"id"`

	// Type identifies the originating event category.
	Type Type `json:"type"`

	// Priority is the urgency level shown to the administrator.
	Priority Priority `json:"priority"`

	// Title is the short sanitized headline.
	Title string `json:"title"`

	// Message is the sanitized body text.
	Message string `json:"message"`

	// Read indicates whether the administrator has seen this notification.
	Read bool `json:"read"`

	// ActionURL is an optional navigation target. Invalid values are
	// dropped during validation rather than rejecting the record.
	ActionURL string `json:"actionUrl,omitempty"`

	// Metadata holds contextual identifiers (user id, post id, ...).
	Metadata map[string]string `json:"metadata,omitempty"`

	// Timestamp is the creation time. Immutable after construction.
	Timestamp time.Time `json:"timestamp"`
}

const (
	maxTitleLen   = 200
	maxMessageLen = 1000
)

// NewID generates a collision-resistant client-side notification id
// combining the creation time with a random suffix.
func NewID() string {
	return fmt.Sprintf("notif_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

var (
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
	dangerousPattern = regexp.MustCompile("[<>\"'`\\x00-\\x08\\x0b\\x0c\\x0e-\\x1f]")
	actionURLPattern = regexp.MustCompile(`^(/[^\s]*|https?://[^\s]+)$`)
)

// Sanitize strips HTML tags and dangerous characters from s, trims
// surrounding whitespace, and caps the result at max runes.
func Sanitize(s string, max int) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = dangerousPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > max {
		s = string(runes[:max])
	}
	return s
}

// ValidActionURL reports whether u is an internal-relative path or an
// absolute http(s) URL.
func ValidActionURL(u string) bool {
	return actionURLPattern.MatchString(u)
}

// Normalize sanitizes the content fields and silently repairs the
// non-essential attributes: an invalid priority becomes medium and an
// invalid action URL is dropped. Type correctness is checked by
// Validate instead, since a wrong type is fatal rather than repairable.
func (n *Notification) Normalize() {
	n.Title = Sanitize(n.Title, maxTitleLen)
	n.Message = Sanitize(n.Message, maxMessageLen)
	if !ValidPriority(n.Priority) {
		n.Priority = PriorityMedium
	}
	if n.ActionURL != "" && !ValidActionURL(n.ActionURL) {
		n.ActionURL = ""
	}
}

// Validate checks the required fields. A notification failing
// validation must be rejected outright, never partially stored.
func (n *Notification) Validate() error {
	if !ValidType(n.Type) {
		return fmt.Errorf("invalid notification type %q", n.Type)
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("notification title must not be empty")
	}
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("notification message must not be empty")
	}
	return nil
}
