package input

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragline/internal/adapters/driving/tui/styles"
)

func TestNewSearchInput(t *testing.T) {
	in := NewSearchInput(styles.DefaultStyles())

	require.NotNil(t, in)
	assert.Equal(t, "", in.Value())
	assert.True(t, in.Focused())
	assert.Contains(t, in.View(), "Search")
}

func TestNewMessageInput(t *testing.T) {
	in := NewMessageInput(nil)

	require.NotNil(t, in)
	assert.NotNil(t, in.styles)
	assert.Contains(t, in.View(), "You")
}

func TestTextInput_Init(t *testing.T) {
	in := New(nil, "Label", "", 10)

	assert.NotNil(t, in.Init())
}

func TestTextInput_Update(t *testing.T) {
	in := NewSearchInput(nil)

	updated, _ := in.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'h', 'i'}})

	assert.Same(t, in, updated)
	assert.Equal(t, "hi", in.Value())
}

func TestTextInput_CharLimit(t *testing.T) {
	in := New(nil, "Short", "", 3)

	in.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("abcdef")})

	assert.Equal(t, "abc", in.Value())
}

func TestTextInput_SetValueAndReset(t *testing.T) {
	in := NewSearchInput(nil)

	in.SetValue("refund policy")
	assert.Equal(t, "refund policy", in.Value())

	in.Reset()
	assert.Equal(t, "", in.Value())
}

func TestTextInput_FocusAndBlur(t *testing.T) {
	in := NewSearchInput(nil)

	in.Blur()
	assert.False(t, in.Focused())

	in.Focus()
	assert.True(t, in.Focused())
}

func TestTextInput_SetWidth(t *testing.T) {
	in := NewSearchInput(nil)

	in.SetWidth(100)
	assert.Equal(t, 100, in.Width())
	assert.Equal(t, 86, in.textinput.Width)

	in.SetWidth(10)
	assert.Equal(t, 20, in.textinput.Width)
}
