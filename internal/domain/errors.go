package domain

import "errors"

// Relay failure taxonomy. None of these ever terminate a connection.
var (
	ErrMalformedEvent        = errors.New("malformed event")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrUnknownRoom           = errors.New("unknown room")
	ErrNotMember             = errors.New("connection is not a member of the room")
	ErrDurabilityWriteFailed = errors.New("durable write failed")
	ErrStreamNotFound        = errors.New("stream not found")
)

// Rejection reasons used in logs and metrics.
const (
	ReasonMalformed    = "malformed"
	ReasonUnauthorized = "unauthorized"
	ReasonUnknownRoom  = "unknown_room"
	ReasonNotMember    = "not_member"
	ReasonDurability   = "durability"
	ReasonOther        = "other"
)

// Reason maps an error to its rejection reason label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedEvent):
		return ReasonMalformed
	case errors.Is(err, ErrNotAuthorized):
		return ReasonUnauthorized
	case errors.Is(err, ErrUnknownRoom):
		return ReasonUnknownRoom
	case errors.Is(err, ErrNotMember):
		return ReasonNotMember
	case errors.Is(err, ErrDurabilityWriteFailed):
		return ReasonDurability
	default:
		return ReasonOther
	}
}
