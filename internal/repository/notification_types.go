package repository

import "time"

// ── Notification types ───────────────────────────────────────────────────────

// Template recipient types.
const (
	RecipientApprover  = "approver"
	RecipientRequestor = "requestor"
	RecipientBoth      = "both" // legacy shape, kept for older templates
)

// NotificationTemplate is a message template. Name is the unique routing key.
// Subject and Body contain {variable} placeholders and {cond && text}
// conditional blocks.
type NotificationTemplate struct {
	ID            string
	Name          string
	Subject       string
	Body          string
	RecipientType string // approver | requestor | both
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NotificationEventType describes an event the router can receive.
type NotificationEventType struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"` // approval | status_update | system | reminder
	Module   string `json:"module"`   // entity type
	IsActive bool   `json:"isActive"`
}

// NotificationRecord is one in-app notification row, consumed by the portal
// UI and its real-time layer.
type NotificationRecord struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	Type              string     `json:"type"`
	Category          string     `json:"category"`
	Priority          string     `json:"priority"`
	RelatedEntityType *string    `json:"relatedEntityType,omitempty"`
	RelatedEntityID   *string    `json:"relatedEntityId,omitempty"`
	ActionRequired    bool       `json:"actionRequired"`
	ActionURL         *string    `json:"actionUrl,omitempty"`
	IsRead            bool       `json:"isRead"`
	IsDismissed       bool       `json:"isDismissed"`
	CreatedAt         time.Time  `json:"createdAt"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
}

// NotificationQuery filters NotificationRepository.QueryByUser.
type NotificationQuery struct {
	UserID     string
	UnreadOnly bool
	Category   *string
	Limit      int
	Offset     int
}

// NotificationCounts aggregates a user's open notifications.
type NotificationCounts struct {
	Unread         int `json:"unread"`
	ActionRequired int `json:"actionRequired"`
}
