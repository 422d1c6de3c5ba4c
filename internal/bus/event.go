package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the client core. Subscribers filter by
// namespace prefix, so "message." matches both message kinds.
const (
	KindMessageReceived = "message.received"       // payload: *transport.Message
	KindMessageNotice   = "message.notice"         // payload: NoticePayload
	KindRosterUpdated   = "roster.updated"         // payload: []transport.PresenceEntry
	KindKeyChanged      = "key.changed"            // payload: keyring.KeyChange
	KindNoticeInfo      = "notice.info"            // payload: string
	KindNoticeError     = "notice.error"           // payload: string
	KindStatusChanged   = "session.status_changed" // payload: status.StatusChange
)

// NoticePayload carries an ephemeral system notice together with the
// server timestamp it arrived with.
type NoticePayload struct {
	Text      string
	Timestamp string
}
