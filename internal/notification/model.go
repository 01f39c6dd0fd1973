package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification types. The role prefix ("admin_" / "user_") scopes unread
// counts: an admin's badge counts admin_* rows, a regular user's counts
// user_* rows addressed to them.
const (
	TypeAdminNewUser     = "admin_new_user"
	TypeAdminNewReport   = "admin_new_report"
	TypeAdminSystemAlert = "admin_system_alert"

	TypeUserBanned         = "user_banned"
	TypeUserSuspended      = "user_suspended"
	TypeUserReportResolved = "user_report_resolved"

	PrefixAdmin = "admin_"
	PrefixUser  = "user_"
)

// Priority levels.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification is one durable row scoped to a single recipient. Rows are
// soft-archived, never deleted.
type Notification struct {
	ID          uuid.UUID      `json:"id"`
	RecipientID uuid.UUID      `json:"recipientId"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Priority    string         `json:"priority"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Read        bool           `json:"read"`
	Archived    bool           `json:"archived"`
	CreatedAt   time.Time      `json:"createdAt"`
}
