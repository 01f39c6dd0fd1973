package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"litlink/internal/logging"
	"litlink/internal/metrics"
)

// Directory resolves the durable admin roster. It is the account store, not
// the connection registry: fan-out targets every admin account, connected or
// not.
type Directory interface {
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Pusher attempts best-effort delivery to a live connection. It reports
// whether a local connection accepted the event; a false return is not an
// error, the durable row is the source of truth.
type Pusher interface {
	SendToUser(userID uuid.UUID, payload []byte) bool
}

// Options tune a single fan-out call.
type Options struct {
	// Priority overrides the trigger's default (low|medium|high|urgent).
	Priority string
	// Metadata is carried verbatim on the row and the push.
	Metadata map[string]any
}

// Fanout persists one notification row per recipient and pushes to whoever
// is connected. Persistence and push failures are isolated per recipient.
type Fanout struct {
	store     Store
	directory Directory
	pusher    Pusher
	metrics   *metrics.Metrics
}

func NewFanout(store Store, directory Directory, pusher Pusher, m *metrics.Metrics) *Fanout {
	return &Fanout{store: store, directory: directory, pusher: pusher, metrics: m}
}

// pushEvent is the wire shape of a notification push.
type pushEvent struct {
	Type             string         `json:"type"`
	ID               uuid.UUID      `json:"id"`
	NotificationType string         `json:"notificationType"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	Priority         string         `json:"priority"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// NotifyAllAdmins writes one durable row per admin account and pushes to the
// admins with a live connection. A failure for one admin never aborts the
// rest; only a roster resolution failure is returned.
func (f *Fanout) NotifyAllAdmins(ctx context.Context, typ, title, message string, opts Options) error {
	admins, err := f.directory.ListAdminIDs(ctx)
	if err != nil {
		return fmt.Errorf("resolving admin roster: %w", err)
	}

	for _, adminID := range admins {
		f.deliver(ctx, adminID, typ, title, message, opts)
	}
	return nil
}

// NotifyUser is the single-recipient variant of NotifyAllAdmins.
func (f *Fanout) NotifyUser(ctx context.Context, userID uuid.UUID, typ, title, message string, opts Options) error {
	f.deliver(ctx, userID, typ, title, message, opts)
	return nil
}

// deliver persists then pushes for one recipient. Push failure never rolls
// back the row.
func (f *Fanout) deliver(ctx context.Context, recipientID uuid.UUID, typ, title, message string, opts Options) {
	priority := opts.Priority
	if priority == "" {
		priority = PriorityHigh
	}

	n := &Notification{
		RecipientID: recipientID,
		Type:        typ,
		Title:       title,
		Message:     message,
		Priority:    priority,
		Metadata:    opts.Metadata,
	}
	if err := f.store.Insert(ctx, n); err != nil {
		logging.Error().Err(err).
			Str("recipient_id", recipientID.String()).
			Str("type", typ).
			Msg("persisting notification failed")
		return
	}
	f.metrics.NotificationsSent.WithLabelValues(typ).Inc()

	payload, err := json.Marshal(pushEvent{
		Type:             "notification",
		ID:               n.ID,
		NotificationType: n.Type,
		Title:            n.Title,
		Message:          n.Message,
		Priority:         n.Priority,
		Metadata:         n.Metadata,
		CreatedAt:        n.CreatedAt,
	})
	if err != nil {
		logging.Error().Err(err).Str("type", typ).Msg("encoding notification push failed")
		return
	}

	if f.pusher.SendToUser(recipientID, payload) {
		logging.Debug().
			Str("recipient_id", recipientID.String()).
			Str("type", typ).
			Msg("notification pushed")
	}
}

// NotifyNewSignup announces a fresh account to every admin.
func (f *Fanout) NotifyNewSignup(ctx context.Context, userID uuid.UUID, username string) error {
	return f.NotifyAllAdmins(ctx, TypeAdminNewUser,
		"New member",
		fmt.Sprintf("%s joined Litlink", username),
		Options{
			Priority: PriorityMedium,
			Metadata: map[string]any{"userId": userID.String(), "username": username},
		})
}

// NotifyNewReport announces a moderation report to every admin. Urgent
// reports keep their urgency; everything else lands as high.
func (f *Fanout) NotifyNewReport(ctx context.Context, reportID uuid.UUID, category, reportPriority string) error {
	priority := PriorityHigh
	if reportPriority == PriorityUrgent {
		priority = PriorityUrgent
	}
	return f.NotifyAllAdmins(ctx, TypeAdminNewReport,
		"New report",
		fmt.Sprintf("A new %s report needs review", category),
		Options{
			Priority: priority,
			Metadata: map[string]any{"reportId": reportID.String(), "category": category},
		})
}

// NotifyUserBanned tells the affected account it was banned.
func (f *Fanout) NotifyUserBanned(ctx context.Context, userID uuid.UUID, reason string) error {
	return f.NotifyUser(ctx, userID, TypeUserBanned,
		"Account banned", reason,
		Options{Priority: PriorityHigh})
}

// NotifyUserSuspended tells the affected account it was suspended.
func (f *Fanout) NotifyUserSuspended(ctx context.Context, userID uuid.UUID, reason string) error {
	return f.NotifyUser(ctx, userID, TypeUserSuspended,
		"Account suspended", reason,
		Options{Priority: PriorityMedium})
}

// NotifyReportResolved tells the reporter their report was handled.
func (f *Fanout) NotifyReportResolved(ctx context.Context, reporterID, reportID uuid.UUID, resolution string) error {
	return f.NotifyUser(ctx, reporterID, TypeUserReportResolved,
		"Report resolved", resolution,
		Options{
			Priority: PriorityLow,
			Metadata: map[string]any{"reportId": reportID.String()},
		})
}

// NotifySystemAlert broadcasts an ad-hoc alert to every admin.
func (f *Fanout) NotifySystemAlert(ctx context.Context, title, message string, opts Options) error {
	return f.NotifyAllAdmins(ctx, TypeAdminSystemAlert, title, message, opts)
}
