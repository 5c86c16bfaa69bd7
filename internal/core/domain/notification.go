package domain

import "time"

type NotificationID string

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

type Notification struct {
	ID        NotificationID `json:"id"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Link      string         `json:"link,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

type NotificationEventKind string

const (
	NotificationAdded   NotificationEventKind = "added"
	NotificationRemoved NotificationEventKind = "removed"
)

type NotificationEvent struct {
	Kind         NotificationEventKind
	Notification Notification
}
