// Package wizard is the interactive settings form opened by --configure. It
// edits every field of the settings file in place and saves on completion;
// canceling leaves the file untouched.
package wizard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joe/cloudpull/internal/config"
)

// Exported variables.
var (
	// ErrCanceled is returned when the user leaves the wizard without saving.
	ErrCanceled = errors.New("configuration canceled")
)

// field describes one editable settings entry.
type field struct {
	label       string
	placeholder string
	get         func(*config.Settings) string
	set         func(*config.Settings, string) error
}

// fields defines the form order.
//
//nolint:gochecknoglobals // Static form definition
var fields = []field{
	{
		label:       "Remote name",
		placeholder: "gdrive",
		get:         func(s *config.Settings) string { return s.RemoteName },
		set:         func(s *config.Settings, v string) error { s.RemoteName = v; return nil },
	},
	{
		label:       "Remote root",
		placeholder: "gdrive:photos",
		get:         func(s *config.Settings) string { return s.RemoteRoot },
		set:         func(s *config.Settings, v string) error { s.RemoteRoot = v; return nil },
	},
	{
		label:       "Local root (path or sftp:// URL)",
		placeholder: "/mnt/photos",
		get:         func(s *config.Settings) string { return s.LocalRoot },
		set:         func(s *config.Settings, v string) error { s.LocalRoot = v; return nil },
	},
	{
		label:       "Transfer tool path (empty = PATH lookup)",
		placeholder: "/usr/bin/rclone",
		get:         func(s *config.Settings) string { return s.ToolPath },
		set:         func(s *config.Settings, v string) error { s.ToolPath = v; return nil },
	},
	{
		label:       "File-stream client path (empty = none)",
		placeholder: "/usr/bin/streamclient",
		get:         func(s *config.Settings) string { return s.StreamClientPath },
		set:         func(s *config.Settings, v string) error { s.StreamClientPath = v; return nil },
	},
	{
		label:       "Log directory",
		placeholder: "~/.local/share/cloudpull/logs",
		get:         func(s *config.Settings) string { return s.LogDir },
		set:         func(s *config.Settings, v string) error { s.LogDir = v; return nil },
	},
	{
		label:       "State directory",
		placeholder: "~/.local/share/cloudpull/state",
		get:         func(s *config.Settings) string { return s.StateDir },
		set:         func(s *config.Settings, v string) error { s.StateDir = v; return nil },
	},
	{
		label:       "Maximum state age in days",
		placeholder: strconv.Itoa(config.DefaultMaxAgeDays),
		get:         func(s *config.Settings) string { return strconv.Itoa(s.MaxAgeDays) },
		set: func(s *config.Settings, v string) error {
			if v == "" {
				s.MaxAgeDays = config.DefaultMaxAgeDays

				return nil
			}

			days, err := strconv.Atoi(v)
			if err != nil || days < 1 {
				return fmt.Errorf("maximum age must be a positive number, got %q", v) //nolint:err113 // user-facing validation message
			}

			s.MaxAgeDays = days

			return nil
		},
	},
}

// Model is the wizard's bubbletea model.
type Model struct {
	settings config.Settings
	inputs   []textinput.Model
	focus    int
	done     bool
	canceled bool
	errMsg   string
}

// NewModel builds the form pre-filled from the given settings.
func NewModel(settings config.Settings) Model {
	inputs := make([]textinput.Model, len(fields))

	for i, f := range fields {
		input := textinput.New()
		input.Placeholder = f.placeholder
		input.SetValue(f.get(&settings))
		input.Prompt = "  "

		if i == 0 {
			input.Focus()
			input.Prompt = promptArrow()
		}

		inputs[i] = input
	}

	return Model{settings: settings, inputs: inputs}
}

// Done reports whether the form was completed.
func (m Model) Done() bool {
	return m.done
}

// Canceled reports whether the form was abandoned.
func (m Model) Canceled() bool {
	return m.canceled
}

// Settings returns the edited settings. Only meaningful when Done.
func (m Model) Settings() config.Settings {
	return m.settings
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m.updateFocused(msg)
	}

	switch keyMsg.String() {
	case "ctrl+c", "esc":
		m.canceled = true

		return m, tea.Quit

	case "enter", "tab", "down":
		return m.advance()

	case "shift+tab", "up":
		return m.retreat()
	}

	return m.updateFocused(msg)
}

// advance commits the focused field and moves on; committing the last field
// finishes the form.
func (m Model) advance() (tea.Model, tea.Cmd) {
	err := fields[m.focus].set(&m.settings, strings.TrimSpace(m.inputs[m.focus].Value()))
	if err != nil {
		m.errMsg = err.Error()

		return m, nil
	}

	m.errMsg = ""

	if m.focus == len(fields)-1 {
		err = m.settings.Validate()
		if err != nil {
			m.errMsg = err.Error()

			return m, nil
		}

		m.done = true

		return m, tea.Quit
	}

	return m.setFocus(m.focus + 1)
}

// retreat moves focus to the previous field without committing.
func (m Model) retreat() (tea.Model, tea.Cmd) {
	if m.focus == 0 {
		return m, nil
	}

	return m.setFocus(m.focus - 1)
}

// setFocus moves the focus marker and input state to index.
func (m Model) setFocus(index int) (tea.Model, tea.Cmd) {
	m.inputs[m.focus].Blur()
	m.inputs[m.focus].Prompt = "  "

	m.focus = index
	m.inputs[m.focus].Prompt = promptArrow()

	return m, m.inputs[m.focus].Focus()
}

// updateFocused forwards the message to the focused input.
func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)

	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	var builder strings.Builder

	builder.WriteString(titleStyle().Render("cloudpull configuration") + "\n\n")

	for i, f := range fields {
		label := f.label
		if i == m.focus {
			label = labelFocusedStyle().Render(label)
		} else {
			label = labelStyle().Render(label)
		}

		builder.WriteString(label + "\n" + m.inputs[i].View() + "\n")
	}

	if m.errMsg != "" {
		builder.WriteString("\n" + errorStyle().Render(m.errMsg) + "\n")
	}

	builder.WriteString("\n" + helpStyle().Render("enter: next field / finish on last · esc: cancel") + "\n")

	return builder.String()
}

// Run opens the wizard for the given settings and returns the edited result.
func Run(settings config.Settings) (config.Settings, error) {
	program := tea.NewProgram(NewModel(settings))

	final, err := program.Run()
	if err != nil {
		return settings, fmt.Errorf("wizard failed: %w", err)
	}

	model, ok := final.(Model)
	if !ok || !model.Done() {
		return settings, ErrCanceled
	}

	return model.Settings(), nil
}

func titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
}

func labelStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
}

func labelFocusedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true)
}

func errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
}

func helpStyle() lipgloss.Style {
	return lipgloss.NewStyle().Faint(true)
}

func promptArrow() string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Render("> ")
}
