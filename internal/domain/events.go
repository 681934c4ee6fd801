package domain

// Realtime event names shared with the backend.
const (
	EventJobOffer         = "job:offer"
	EventJobUpdated       = "job:updated"
	EventJobCancelled     = "job:cancelled"
	EventJobJoin          = "job:join"
	EventLocationUpdate   = "location:update"
	EventAuthTokenRotated = "auth:token-rotated"
	EventAuthInvalid      = "auth:invalid"
	EventChatMessage      = "chat:message"
	EventChatSend         = "chat:send"
	EventChatTyping       = "chat:typing"
	EventChatRead         = "chat:read"
	EventChatMarkRead     = "chat:mark-read"
	EventPaymentCompleted = "payment:completed"
	EventAck              = "ack"
)

// ConsumedEvents lists the pushes a helper client subscribes to, in the order
// the backend documents them.
func ConsumedEvents() []string {
	return []string{
		EventJobOffer,
		EventJobUpdated,
		EventJobCancelled,
		EventLocationUpdate,
		EventAuthTokenRotated,
		EventAuthInvalid,
		EventChatMessage,
		EventChatTyping,
		EventChatRead,
		EventPaymentCompleted,
	}
}
