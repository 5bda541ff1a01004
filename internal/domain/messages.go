package domain

// WebSocket message types from client.
const (
	MsgTypeJoinConversation  = "join_conversation"
	MsgTypeLeaveConversation = "leave_conversation"
	MsgTypeTyping            = "typing"
	MsgTypeStopTyping        = "stop_typing"
	MsgTypePing              = "ping"
)

// WebSocket reply types to client.
const (
	MsgTypeJoined = "joined"
	MsgTypeLeft   = "left"
	MsgTypeError  = "error"
	MsgTypePong   = "pong"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// ConversationCommand is any client frame addressed to one conversation.
type ConversationCommand struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

// ConversationReply acknowledges join_conversation and leave_conversation.
type ConversationReply struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

func (m *ConversationReply) EventType() string { return m.Type }

func NewJoinedMessage(conversationID string) *ConversationReply {
	return &ConversationReply{Type: MsgTypeJoined, ConversationID: conversationID}
}

func NewLeftMessage(conversationID string) *ConversationReply {
	return &ConversationReply{Type: MsgTypeLeft, ConversationID: conversationID}
}

type PongMessage struct {
	Type string `json:"type"`
}

func (m *PongMessage) EventType() string { return m.Type }

func NewPongMessage() *PongMessage {
	return &PongMessage{Type: MsgTypePong}
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (m *ErrorMessage) EventType() string { return m.Type }

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

// ErrorMessageFrom classifies err into an error frame.
func ErrorMessageFrom(err error) *ErrorMessage {
	return NewErrorMessage(ErrorCode(err), PublicMessage(err))
}
