package domain

// MessageStatus represents a coarse send status used by the legacy
// broadcast delivery path. New code should track individual event
// timestamps on MessageHistory instead.
type MessageStatus string

const (
	// Message status constants
	MessageStatusSent         MessageStatus = "sent"
	MessageStatusDelivered    MessageStatus = "delivered"
	MessageStatusFailed       MessageStatus = "failed"
	MessageStatusOpened       MessageStatus = "opened"
	MessageStatusClicked      MessageStatus = "clicked"
	MessageStatusBounced      MessageStatus = "bounced"
	MessageStatusComplained   MessageStatus = "complained"
	MessageStatusUnsubscribed MessageStatus = "unsubscribed"
)
