package message

// UserInput is the frame that starts a turn.
//
//nolint:tagliatelle // peer uses snake_case
type UserInput struct {
	Type            string      `json:"type"`
	Message         UserContent `json:"message"`
	ParentToolUseID *string     `json:"parent_tool_use_id"`
	SessionID       string      `json:"session_id"`
}

// UserContent is the body of a UserInput.
type UserContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserInput builds the frame for a text prompt. An empty sessionID uses
// the peer's default session.
func NewUserInput(prompt, sessionID string) *UserInput {
	if sessionID == "" {
		sessionID = "default"
	}

	return &UserInput{
		Type:      TypeUser,
		Message:   UserContent{Role: "user", Content: prompt},
		SessionID: sessionID,
	}
}
