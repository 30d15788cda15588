package api

// ChatStreamRequest is the payload for the streaming chat endpoint.
type ChatStreamRequest struct {
	Message        string `json:"message" validate:"required"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id" validate:"required"`
}

// ChatRequest is the payload for the blocking (workflow webhook) chat endpoint.
type ChatRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id" validate:"required"`
}

// ChatResponse is the reply of the blocking chat endpoint.
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id,omitempty"`
}

// SynthesizeRequest is the payload for the text-to-speech endpoint.
type SynthesizeRequest struct {
	Text  string `json:"text" validate:"required"`
	Voice string `json:"voice"`
	Rate  string `json:"rate"`
	Pitch string `json:"pitch"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// streamFrame is the wire shape of one downstream SSE event.
type streamFrame struct {
	Event          string `json:"event"`
	Chunk          string `json:"chunk,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	CompleteAnswer string `json:"complete_answer,omitempty"`
	Err            string `json:"error,omitempty"`
	Kind           string `json:"kind,omitempty"`
}
