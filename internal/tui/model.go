package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mediachat/internal/models"
	"mediachat/internal/session"
)

// SessionPort is the TUI-facing subset of the session controller.
type SessionPort interface {
	Submit(ctx context.Context, question string) (*session.Turn, error)
	Sync(ctx context.Context) error
	SetPDFMode(on bool)
	UploadPDFs(files []models.Upload)
	AttachImage(file *models.Upload)
	AttachAudio(file *models.Upload)
	State() session.State
}

type turnMsg struct {
	turn *session.Turn
	err  error
}

type syncMsg struct {
	err error
}

// Model is the Bubble Tea model for the chat screen. While a turn or a
// knowledge update is running, input is ignored.
type Model struct {
	ctx      context.Context
	session  SessionPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	state   session.State
	entries []string
	status  string
	busy    bool
	ready   bool
}

func New(ctx context.Context, s SessionPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask something, or /pdf /image /audio /quit"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		session:  s,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		state:    s.State(),
		status:   "Enter to send, ctrl+p toggles PDF chat",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header, mode line, status, input box
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case turnMsg:
		m.busy = false
		m.state = m.session.State()
		if msg.err != nil {
			m.addEntry(errorStyle.Render(fmt.Sprintf("error (%s): %v", models.Kind(msg.err), msg.err)))
			m.status = "Turn failed"
		} else if msg.turn != nil {
			m.addTurn(msg.turn)
			m.status = "Ready"
		}
		return m, nil

	case syncMsg:
		m.busy = false
		m.state = m.session.State()
		if msg.err != nil {
			m.addEntry(errorStyle.Render(fmt.Sprintf("knowledge update failed (%s): %v", models.Kind(msg.err), msg.err)))
			m.status = "Knowledge update failed"
		} else {
			m.status = "Ready"
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+p":
			m.session.SetPDFMode(!m.state.PDFMode)
			m.state = m.session.State()
			return m.startSync()
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.SetValue("")
			if strings.HasPrefix(line, "/") {
				return m.command(line)
			}
			m.addEntry(userStyle.Render("you: ") + line)
			m.busy = true
			m.status = "Thinking"
			q := line
			submit := func() tea.Msg {
				turn, err := m.session.Submit(m.ctx, q)
				return turnMsg{turn: turn, err: err}
			}
			return m, tea.Batch(submit, m.spinner.Tick)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// command handles slash commands. Upload commands with no paths clear the
// slot.
func (m Model) command(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/pdf":
		if len(args) == 0 {
			m.session.UploadPDFs(nil)
			m.state = m.session.State()
			m.status = "PDFs cleared"
			return m, nil
		}
		uploads, err := session.ReadUploads(args, session.PDFExtensions...)
		if err != nil {
			m.addEntry(errorStyle.Render(err.Error()))
			return m, nil
		}
		m.session.UploadPDFs(uploads)
		m.state = m.session.State()
		return m.startSync()
	case "/image":
		up, err := optionalUpload(args, session.ImageExtensions)
		if err != nil {
			m.addEntry(errorStyle.Render(err.Error()))
			return m, nil
		}
		m.session.AttachImage(up)
	case "/audio":
		up, err := optionalUpload(args, session.AudioExtensions)
		if err != nil {
			m.addEntry(errorStyle.Render(err.Error()))
			return m, nil
		}
		m.session.AttachAudio(up)
	default:
		m.addEntry(errorStyle.Render("unknown command " + name))
		return m, nil
	}
	m.state = m.session.State()
	m.status = "Ready"
	return m, nil
}

func optionalUpload(args []string, exts []string) (*models.Upload, error) {
	if len(args) == 0 {
		return nil, nil
	}
	up, err := session.ReadUpload(args[0], exts...)
	if err != nil {
		return nil, err
	}
	return &up, nil
}

func (m Model) startSync() (tea.Model, tea.Cmd) {
	m.busy = true
	m.status = "Updating knowledge base"
	sync := func() tea.Msg {
		return syncMsg{err: m.session.Sync(m.ctx)}
	}
	return m, tea.Batch(sync, m.spinner.Tick)
}

func (m *Model) addTurn(turn *session.Turn) {
	var b strings.Builder
	if turn.TranscriptionErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("could not transcribe audio (%s)", models.Kind(turn.TranscriptionErr))))
		m.addEntry(b.String())
		return
	}
	if turn.Transcript != "" {
		b.WriteString(infoStyle.Render("transcript: "+turn.Transcript) + "\n")
	}
	b.WriteString(botStyle.Render("bot: ") + turn.Answer)
	if len(turn.Sources) > 0 {
		b.WriteString("\n" + infoStyle.Render("sources: "+strings.Join(turn.Sources, ", ")))
	}
	if turn.Degraded {
		b.WriteString("\n" + infoStyle.Render("(answered without document context)"))
	}
	if turn.AudioPath != "" {
		b.WriteString("\n" + infoStyle.Render("audio: "+turn.AudioPath))
	}
	if turn.KnowledgeErr != nil {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("knowledge base not updated (%s)", models.Kind(turn.KnowledgeErr))))
	}
	m.addEntry(b.String())
}

func (m *Model) addEntry(s string) {
	m.entries = append(m.entries, s)
	m.refresh()
}

func (m *Model) refresh() {
	content := "No messages yet."
	if len(m.entries) > 0 {
		content = strings.Join(m.entries, "\n\n")
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(content))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Multi-Media Chat")
	mode := infoStyle.Render(m.modeLine())
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + mode + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) modeLine() string {
	mode := "plain chat"
	if m.state.PDFMode {
		mode = fmt.Sprintf("PDF chat (%d files)", len(m.state.PDFs))
	}
	parts := []string{mode}
	if m.state.Image != "" {
		parts = append(parts, "image: "+m.state.Image)
	}
	if m.state.Audio != "" {
		parts = append(parts, "audio: "+m.state.Audio)
	}
	return strings.Join(parts, " | ")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	infoStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
