package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"speakdocs/internal/composer"
	"speakdocs/internal/domain"
	"speakdocs/internal/service"
)

// PipelinePort is the TUI-facing subset of the answer pipeline.
type PipelinePort interface {
	Ask(ctx context.Context, sessionID, query string) (answer string, fallback bool, err error)
	Ingest(ctx context.Context, sessionID string, docs []domain.Document) (summary string, err error)
	History(sessionID string) []domain.Turn
	ClearConversation(sessionID string)
}

type answerMsg struct {
	answer   string
	fallback bool
}

type ingestMsg struct {
	summary string
	count   int
	err     error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	pipeline  PipelinePort
	extractor domain.Extractor
	sessionID string

	input    textinput.Model
	viewport viewport.Model
	overview string
	status   string
	busy     bool
	ready    bool
}

// New creates a new chat model. overview may be empty when the session
// starts without documents.
func New(pipeline PipelinePort, extractor domain.Extractor, sessionID, overview string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents (/upload <files>, /reset, ctrl+c to quit)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		pipeline:  pipeline,
		extractor: extractor,
		sessionID: sessionID,
		input:     ti,
		viewport:  vp,
		overview:  overview,
		status:    "Ready.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + overview, status, input frame, spacer
		vh := msg.Height - reserved - th
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width-4)
		m.viewport.Height = vh
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.fallback {
			m.status = "No documents loaded yet."
		} else {
			m.status = "Ready."
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case ingestMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Upload failed: " + msg.err.Error()
			return m, nil
		}
		if msg.summary != "" {
			m.overview = msg.summary
		}
		m.status = fmt.Sprintf("%d file(s) uploaded and processed successfully.", msg.count)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.Reset()
			return m.submit(line)
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	switch {
	case strings.HasPrefix(line, "/upload "):
		paths := strings.Fields(strings.TrimPrefix(line, "/upload "))
		m.busy = true
		m.status = "Uploading..."
		return m, func() tea.Msg {
			docs, err := m.extractor.Extract(paths)
			if err != nil {
				return ingestMsg{err: err}
			}
			summary, err := m.pipeline.Ingest(context.Background(), m.sessionID, docs)
			return ingestMsg{summary: summary, count: len(docs), err: err}
		}
	case line == "/reset":
		m.pipeline.ClearConversation(m.sessionID)
		m.status = "Conversation cleared."
		m.viewport.SetContent(m.renderTranscript())
		return m, nil
	default:
		m.busy = true
		m.status = "Thinking..."
		return m, func() tea.Msg {
			answer, fallback, _ := m.pipeline.Ask(context.Background(), m.sessionID, line)
			return answerMsg{answer: answer, fallback: fallback}
		}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Speak to Docs")
	overview := overviewStyle.Render(m.overview)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + overview + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	turns := m.pipeline.History(m.sessionID)
	if len(turns) == 0 {
		return "No messages yet. Ask a question about your documents."
	}
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch turn.Role {
		case domain.RoleUser:
			b.WriteString(userStyle.Render("You: ") + turn.Text)
		case domain.RoleAssistant:
			text := turn.Text
			if degradedTurn(text) {
				text = degradedStyle.Render(text)
			}
			b.WriteString(assistantStyle.Render("Assistant: ") + text)
		}
	}
	return b.String()
}

// degradedTurn reports whether an assistant turn carries one of the
// fixed degraded or fallback sentences rather than a computed answer.
func degradedTurn(text string) bool {
	switch text {
	case service.NoDocumentsAnswer, service.DegradedAnswer, composer.Fallback:
		return true
	}
	return false
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	overviewStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	degradedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
