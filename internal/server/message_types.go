package server

// Round, ticket and notification events published by other packages travel
// in the same envelope; their names are defined next to their producers.

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeBuyColumns            MessageType = "buy_columns"
	MessageTypeAdminBlockColumns     MessageType = "admin_block_columns"
	MessageTypeAdminUnblockColumns   MessageType = "admin_unblock_columns"
	MessageTypeAdminSetTimer         MessageType = "admin_set_timer"
	MessageTypeAdminStopGame         MessageType = "admin_stop_game"
	MessageTypeAdminResumeGame       MessageType = "admin_resume_game"
	MessageTypeAdminDeclareWinner    MessageType = "admin_declare_winner"
	MessageTypeAdminRequestGameState MessageType = "admin_request_game_state"
	MessageTypeAdminSoldOutInterval  MessageType = "admin_set_sold_out_interval"
	MessageTypeAdminForceStart       MessageType = "admin_force_start"
	MessageTypeSubscribeTicket       MessageType = "subscribe_to_ticket_status"
	MessageTypeDrawStart             MessageType = "admin_sorteo_start"
	MessageTypeDrawPauseResume       MessageType = "admin_sorteo_pause_resume"
	MessageTypeDrawRequestState      MessageType = "admin_request_sorteo_state"

	// Server to client messages
	MessageTypeError      MessageType = "error"
	MessageTypeSubscribed MessageType = "subscribed"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
