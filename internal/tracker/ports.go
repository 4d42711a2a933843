package tracker

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Confirmer asks the user to approve a destructive action
type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, message string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, message string) bool {
	return f(ctx, message)
}

type confirmerKey struct{}

// WithConfirmer attaches a Confirmer to ctx. It takes precedence over the session's default.
func WithConfirmer(ctx context.Context, c Confirmer) context.Context {
	return context.WithValue(ctx, confirmerKey{}, c)
}

func confirmerFrom(ctx context.Context, fallback Confirmer) Confirmer {
	if c, ok := ctx.Value(confirmerKey{}).(Confirmer); ok && c != nil {
		return c
	}
	return fallback
}

// NotificationKind classifies an outcome message
type NotificationKind string

const (
	NotifyAchievement      NotificationKind = "achievement_unlocked"
	NotifyBonusAvailable   NotificationKind = "bonus_available"
	NotifyPromotion        NotificationKind = "rank_promoted"
	NotifyUpgradeAvailable NotificationKind = "upgrade_available"
	NotifyPenalty          NotificationKind = "penalty_charged"
	NotifyWeekClosed       NotificationKind = "week_closed"
	NotifySyncFailed       NotificationKind = "sync_failed"
)

// Notification is a transient outcome shown to the user
type Notification struct {
	UserID  uuid.UUID        `json:"userId"`
	Kind    NotificationKind `json:"kind"`
	TaskID  string           `json:"taskId,omitempty"`
	Message string           `json:"message"`
}

// Notifier delivers notifications. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	Logger *zap.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	if l.Logger == nil {
		return
	}
	l.Logger.Info("notification",
		zap.String("user_id", n.UserID.String()),
		zap.String("kind", string(n.Kind)),
		zap.String("task_id", n.TaskID),
		zap.String("message", n.Message))
}

var (
	_ Confirmer = ConfirmFunc(nil)
	_ Notifier  = LogNotifier{}
)
