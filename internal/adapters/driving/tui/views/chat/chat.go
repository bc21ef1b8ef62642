// Package chat provides the conversational view for the TUI.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ragline/internal/core/domain"
	"github.com/custodia-labs/ragline/internal/core/ports/driving"
)

// ErrNoChatService is returned when the view has no chat service.
var ErrNoChatService = errors.New("chat service not available")

type speaker int

const (
	speakerUser speaker = iota
	speakerBot
	speakerSystem
)

type turn struct {
	speaker speaker
	text    string
}

// View is a chat transcript with a message input.
type View struct {
	styles     *styles.Styles
	keymap     *keymap.KeyMap
	input      *input.TextInput
	transcript viewport.Model
	statusbar  *status.Bar

	chat      driving.ChatService
	identity  domain.Identity
	chatbotID int64
	ctx       context.Context

	turns          []turn
	conversationID int64
	waiting        bool
	width          int
	height         int
	ready          bool
	err            error
}

// NewView creates a chat view talking to chatbotID as identity.
func NewView(
	s *styles.Styles,
	km *keymap.KeyMap,
	chat driving.ChatService,
	identity domain.Identity,
	chatbotID int64,
) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	bar := status.NewBar(s, km)
	bar.SetHints(km.ChatHelp())

	return &View{
		styles:     s,
		keymap:     km,
		input:      input.NewMessageInput(s),
		transcript: viewport.New(80, 14),
		statusbar:  bar,
		chat:       chat,
		identity:   identity,
		chatbotID:  chatbotID,
		ctx:        context.Background(),
		width:      80,
		height:     24,
	}
}

// WithContext sets the context used for service calls.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return v.input.Init()
}

// Update handles messages for the chat view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.ChatResponded:
		v.handleResponse(msg)
		return v, nil

	case messages.ErrorOccurred:
		v.err = msg.Err
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(msg.Err.Error())
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	k := msg.String()
	switch {
	case msg.Type == tea.KeyEsc:
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	case keymap.Matches(k, v.keymap.NewChat):
		v.NewConversation()
		return v, nil
	case msg.Type == tea.KeyPgUp, msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		v.transcript, cmd = v.transcript.Update(msg)
		return v, cmd
	case keymap.Matches(k, v.keymap.Send):
		return v, v.send()
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

// send submits the input as the next turn.
func (v *View) send() tea.Cmd {
	text := strings.TrimSpace(v.input.Value())
	if text == "" || v.waiting {
		return nil
	}

	v.input.Reset()
	v.waiting = true
	v.err = nil
	v.appendTurn(speakerUser, text)
	v.statusbar.SetState(status.StateBusy)
	v.statusbar.SetMessage("Thinking")

	chat, ctx := v.chat, v.ctx
	req := domain.ChatRequest{
		Message:        text,
		ConversationID: v.conversationID,
		ChatbotID:      v.chatbotID,
		Identity:       v.identity,
	}
	return func() tea.Msg {
		if chat == nil {
			return messages.ChatResponded{Message: text, Err: ErrNoChatService}
		}
		resp, err := chat.GenerateResponse(ctx, req)
		return messages.ChatResponded{Message: text, Response: resp, Err: err}
	}
}

func (v *View) handleResponse(msg messages.ChatResponded) {
	v.waiting = false
	if msg.Err != nil {
		v.err = msg.Err
		v.appendTurn(speakerSystem, errorText(msg.Err))
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(msg.Err.Error())
		return
	}

	resp := msg.Response
	v.conversationID = resp.ConversationID
	v.appendTurn(speakerBot, resp.Response)
	v.statusbar.SetState(status.StateInfo)
	v.statusbar.SetMessage(fmt.Sprintf("Conversation %d · %d tokens", resp.ConversationID, resp.Metadata.TotalTokens))
}

// errorText turns a chat failure into a transcript line.
func errorText(err error) string {
	var limited *domain.RateLimitedError
	if errors.As(err, &limited) {
		return limited.Error()
	}
	var rejected *domain.ContentRejectedError
	if errors.As(err, &rejected) {
		return rejected.Error()
	}
	if errors.Is(err, domain.ErrLLMUnavailable) {
		return "No LLM provider is configured. Run `ragline config provider llm`."
	}
	return "Error: " + err.Error()
}

func (v *View) appendTurn(who speaker, text string) {
	v.turns = append(v.turns, turn{speaker: who, text: text})
	v.refresh()
}

// refresh re-renders the transcript and scrolls to the latest turn.
func (v *View) refresh() {
	wrap := lipgloss.NewStyle().Width(max(v.transcript.Width-6, 20))
	lines := make([]string, 0, len(v.turns)*2)
	for _, t := range v.turns {
		var label string
		switch t.speaker {
		case speakerUser:
			label = v.styles.UserLabel.Render("you")
		case speakerBot:
			label = v.styles.BotLabel.Render("bot")
		default:
			label = v.styles.Error.Render("!")
		}
		lines = append(lines, label+"  "+wrap.Render(t.text), "")
	}
	v.transcript.SetContent(strings.Join(lines, "\n"))
	v.transcript.GotoBottom()
}

// NewConversation clears the transcript; the next message starts a new conversation.
func (v *View) NewConversation() {
	v.turns = nil
	v.conversationID = 0
	v.waiting = false
	v.err = nil
	v.input.Reset()
	v.refresh()
	v.statusbar.Clear()
}

// View renders the chat view.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	body := v.transcript.View()
	if len(v.turns) == 0 {
		body = v.styles.Muted.Render("Ask anything about your knowledge base.")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		v.styles.Title.Render("ragline · chat"),
		"",
		body,
		"",
		v.input.View(),
		"",
		v.statusbar.View(),
	)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true

	v.transcript.Width = width
	v.transcript.Height = max(height-9, 3) // title, input and status
	v.input.SetWidth(width)
	v.statusbar.SetWidth(width)
	v.refresh()
}

// ConversationID returns the active conversation, 0 before the first answer.
func (v *View) ConversationID() int64 {
	return v.conversationID
}

// Waiting reports whether a response is pending.
func (v *View) Waiting() bool {
	return v.waiting
}

// Transcript returns the rendered turns as plain "label: text" lines.
func (v *View) Transcript() []string {
	out := make([]string, len(v.turns))
	for i, t := range v.turns {
		switch t.speaker {
		case speakerUser:
			out[i] = "you: " + t.text
		case speakerBot:
			out[i] = "bot: " + t.text
		default:
			out[i] = "error: " + t.text
		}
	}
	return out
}

// SetMessage replaces the input text.
func (v *View) SetMessage(text string) {
	v.input.SetValue(text)
}

// Ready returns whether the view is ready to render.
func (v *View) Ready() bool {
	return v.ready
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}
