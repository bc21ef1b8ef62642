package domain

import "time"

// Role identifies who authored a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Chatbot is a configured assistant with its own persona and knowledge scope.
type Chatbot struct {
	ID              int64   `yaml:"id"`
	Name            string  `yaml:"name"`
	Persona         string  `yaml:"persona"`
	Tone            string  `yaml:"tone"`
	GreetingMessage string  `yaml:"greeting_message"`
	FallbackMessage string  `yaml:"fallback_message"`
	MaxMessages     int     `yaml:"max_messages"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`

	CreatedAt time.Time `yaml:"-"`
	UpdatedAt time.Time `yaml:"-"`
}

// Identity is the rate-limited caller: a user ID or a hashed IP.
type Identity struct {
	UserID    int64
	GuestHash string
}

// IsZero reports whether no identity was supplied.
func (i Identity) IsZero() bool {
	return i.UserID == 0 && i.GuestHash == ""
}

// Conversation groups messages between one identity and one chatbot.
type Conversation struct {
	ID        int64
	ChatbotID int64
	UserID    int64
	GuestHash string
	Title     string
	Favorite  bool
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity returns the caller that owns the conversation.
func (c *Conversation) Identity() Identity {
	return Identity{UserID: c.UserID, GuestHash: c.GuestHash}
}

// MessageMetadata records usage for a message.
type MessageMetadata struct {
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
	Model            string `json:"model,omitempty"`
	Greeting         bool   `json:"greeting,omitempty"`
	Fallback         bool   `json:"fallback,omitempty"`
}

// Message is a single conversation turn.
type Message struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	Metadata       MessageMetadata `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Usage sums token and message counts over a window.
type Usage struct {
	Tokens   int
	Messages int
}
