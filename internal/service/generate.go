package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/notify-agent/internal/model"
)

// The generators turn typed domain-event payloads into fully validated
// notifications. They are pure: nothing is inserted into the
// authoritative set; the caller decides whether to submit the result
// via CreateNotification.

// UserRegisteredEvent carries the payload of a new account signup.
type UserRegisteredEvent struct {
	UserID   string
	Username string
	Email    string
}

// PostPublishedEvent carries the payload of a newly published post.
type PostPublishedEvent struct {
	PostID string
	Title  string
	Author string
}

// SystemErrorEvent carries the payload of an internal failure report.
type SystemErrorEvent struct {
	Component string
	Message   string

	// Severity is one of info, warning, error, critical. Critical maps
	// to high priority; everything else to medium.
	Severity string
}

// UserActivityEvent carries the payload of a notable user action.
type UserActivityEvent struct {
	UserID   string
	Username string
	Action   string
}

// ContentModerationEvent carries the payload of a moderation decision
// awaiting review.
type ContentModerationEvent struct {
	ContentID   string
	ContentType string
	Reason      string
}

// GenerateUserRegisteredNotification builds a notification for a new
// account signup.
func GenerateUserRegisteredNotification(ev UserRegisteredEvent) (model.Notification, error) {
	return newNotification(
		model.TypeUserRegistered,
		model.PriorityMedium,
		"New user registered",
		fmt.Sprintf("%s (%s) just created an account.", ev.Username, ev.Email),
		"/admin/users/"+ev.UserID,
		map[string]string{"userId": ev.UserID},
	)
}

// GeneratePostPublishedNotification builds a notification for a newly
// published post.
func GeneratePostPublishedNotification(ev PostPublishedEvent) (model.Notification, error) {
	return newNotification(
		model.TypePostPublished,
		model.PriorityLow,
		"Post published",
		fmt.Sprintf("%q by %s is now live.", ev.Title, ev.Author),
		"/admin/posts/"+ev.PostID,
		map[string]string{"postId": ev.PostID},
	)
}

// GenerateSystemErrorNotification builds a notification for an
// internal failure. Critical severity maps to high priority.
func GenerateSystemErrorNotification(ev SystemErrorEvent) (model.Notification, error) {
	priority := model.PriorityMedium
	if strings.EqualFold(ev.Severity, "critical") {
		priority = model.PriorityHigh
	}
	component := ev.Component
	if component == "" {
		component = "system"
	}
	return newNotification(
		model.TypeSystemError,
		priority,
		fmt.Sprintf("System error in %s", component),
		ev.Message,
		"/admin/system/logs",
		map[string]string{"component": component, "severity": ev.Severity},
	)
}

// GenerateUserActivityNotification builds a notification for a notable
// user action.
func GenerateUserActivityNotification(ev UserActivityEvent) (model.Notification, error) {
	return newNotification(
		model.TypeUserActivity,
		model.PriorityLow,
		"User activity",
		fmt.Sprintf("%s %s.", ev.Username, ev.Action),
		"/admin/users/"+ev.UserID,
		map[string]string{"userId": ev.UserID},
	)
}

// GenerateContentModerationNotification builds a notification for a
// moderation decision awaiting review.
func GenerateContentModerationNotification(ev ContentModerationEvent) (model.Notification, error) {
	return newNotification(
		model.TypeContentModeration,
		model.PriorityHigh,
		"Content flagged for review",
		fmt.Sprintf("A %s was flagged: %s", ev.ContentType, ev.Reason),
		"/admin/moderation/"+ev.ContentID,
		map[string]string{"contentId": ev.ContentID, "contentType": ev.ContentType},
	)
}

// newNotification assembles, sanitizes, and validates a notification.
// An invalid type is fatal; an invalid priority or action URL is
// silently repaired by Normalize, since navigation hints and urgency
// are non-essential compared to type correctness.
func newNotification(
	t model.Type,
	priority model.Priority,
	title, message, actionURL string,
	metadata map[string]string,
) (model.Notification, error) {
	n := model.Notification{
		ID:        model.NewID(),
		Type:      t,
		Priority:  priority,
		Title:     title,
		Message:   message,
		ActionURL: actionURL,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	n.Normalize()
	if err := n.Validate(); err != nil {
		return model.Notification{}, err
	}
	return n, nil
}
