package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
)

// Audit actions for relay-service.
const (
	ActionConnect       = "relay.connect"
	ActionAuthFailed    = "relay.auth_failed"
	ActionGoLive        = "relay.go_live"
	ActionGoOffline     = "relay.go_offline"
	ActionClaimReleased = "relay.claim_released"
	ActionTipInjected   = "relay.tip_injected"
	ActionDisconnect    = "relay.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogRoom emits an audit entry scoped to a room.
func LogRoom(ctx context.Context, action string, userID string, roomID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldRoomID, roomID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}

// LogRoomWithDetail emits a room-scoped audit entry with an extra detail field.
// userID may be empty for events that no authenticated user originated.
func LogRoomWithDetail(ctx context.Context, action, userID, roomID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldRoomID, roomID).
		Str(FieldDetail, detail).
		Msg(msg)
}
