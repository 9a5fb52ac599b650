package tui

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediachat/internal/models"
	"mediachat/internal/session"
)

type fakeSession struct {
	state     session.State
	questions []string
	turn      *session.Turn
	err       error
	syncs     int
	pdfs      []models.Upload
}

func (f *fakeSession) Submit(_ context.Context, q string) (*session.Turn, error) {
	f.questions = append(f.questions, q)
	return f.turn, f.err
}

func (f *fakeSession) Sync(context.Context) error {
	f.syncs++
	return nil
}

func (f *fakeSession) SetPDFMode(on bool) { f.state.PDFMode = on }

func (f *fakeSession) UploadPDFs(files []models.Upload) {
	f.pdfs = files
	f.state.PDFMode = len(files) > 0
	f.state.PDFs = nil
	for _, up := range files {
		f.state.PDFs = append(f.state.PDFs, up.Name)
	}
}

func (f *fakeSession) AttachImage(file *models.Upload) {
	f.state.Image = ""
	if file != nil {
		f.state.Image = file.Name
	}
}

func (f *fakeSession) AttachAudio(file *models.Upload) {
	f.state.Audio = ""
	if file != nil {
		f.state.Audio = file.Name
	}
}

func (f *fakeSession) State() session.State { return f.state }

func newModel(t *testing.T, s *fakeSession) Model {
	t.Helper()
	m, _ := New(context.Background(), s).Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return m.(Model)
}

func typeLine(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// runBatch executes a batch command and returns the first message that is
// not a spinner tick.
func runBatch(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	for _, c := range batch {
		switch msg := c().(type) {
		case turnMsg, syncMsg:
			return msg
		}
	}
	t.Fatal("no result message in batch")
	return nil
}

func TestSubmitShowsAnswer(t *testing.T) {
	s := &fakeSession{turn: &session.Turn{
		Question:  "capital?",
		Answer:    "Paris",
		Sources:   []string{"france.pdf p.1"},
		AudioPath: "/tmp/speech-1.mp3",
	}}
	m := newModel(t, s)

	m, cmd := typeLine(t, m, "capital?")
	assert.True(t, m.busy)

	// input is ignored while the turn runs
	blocked, blockedCmd := typeLine(t, m, "another")
	assert.Nil(t, blockedCmd)
	assert.True(t, blocked.busy)

	next, _ := m.Update(runBatch(t, cmd))
	m = next.(Model)
	assert.False(t, m.busy)
	assert.Equal(t, []string{"capital?"}, s.questions)

	view := m.viewport.View()
	assert.Contains(t, view, "Paris")
	assert.Contains(t, view, "france.pdf p.1")
	assert.Contains(t, view, "/tmp/speech-1.mp3")
}

func TestSubmitShowsErrors(t *testing.T) {
	s := &fakeSession{err: models.ErrBackendUnavailable}
	m := newModel(t, s)

	m, cmd := typeLine(t, m, "hello")
	next, _ := m.Update(runBatch(t, cmd))
	assert.Contains(t, next.(Model).viewport.View(), "BackendUnavailable")

	s.err = nil
	s.turn = &session.Turn{Route: session.RouteAudio, TranscriptionErr: models.ErrUnrecognizedSpeech}
	m, cmd = typeLine(t, next.(Model), "what is in the audio")
	next, _ = m.Update(runBatch(t, cmd))
	assert.Contains(t, next.(Model).viewport.View(), "could not transcribe audio (UnrecognizedSpeech)")

	s.turn = &session.Turn{Route: session.RouteText, Answer: "hi", Degraded: true, KnowledgeErr: models.ErrBackendUnavailable}
	m, cmd = typeLine(t, next.(Model), "hello again")
	next, _ = m.Update(runBatch(t, cmd))
	assert.Contains(t, next.(Model).viewport.View(), "knowledge base not updated (BackendUnavailable)")
}

func TestTogglePDFMode(t *testing.T) {
	s := &fakeSession{}
	m := newModel(t, s)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	m = next.(Model)
	assert.True(t, s.state.PDFMode)
	assert.True(t, m.busy)

	next, _ = m.Update(runBatch(t, cmd))
	m = next.(Model)
	assert.Equal(t, 1, s.syncs)
	assert.False(t, m.busy)
	assert.Contains(t, m.View(), "PDF chat")
}

func TestUploadCommands(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "doc.pdf")
	img := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(img, []byte("png"), 0o644))

	s := &fakeSession{}
	m := newModel(t, s)

	m, cmd := typeLine(t, m, "/pdf "+pdf)
	require.Len(t, s.pdfs, 1)
	assert.Equal(t, "doc.pdf", s.pdfs[0].Name)
	next, _ := m.Update(runBatch(t, cmd))
	m = next.(Model)

	m, _ = typeLine(t, m, "/image "+img)
	assert.Equal(t, "cat.png", s.state.Image)
	assert.Contains(t, m.View(), "image: cat.png")

	m, _ = typeLine(t, m, "/audio "+img)
	assert.Empty(t, s.state.Audio)
	assert.Contains(t, m.viewport.View(), "unsupported file type")

	m, _ = typeLine(t, m, "/image")
	assert.Empty(t, s.state.Image)

	m, cmd = typeLine(t, m, "/pdf")
	assert.Nil(t, cmd)
	assert.False(t, s.state.PDFMode)
	assert.Empty(t, s.questions)
	assert.Contains(t, m.View(), "plain chat")
}

func TestQuit(t *testing.T) {
	m := newModel(t, &fakeSession{})
	_, cmd := typeLine(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}
