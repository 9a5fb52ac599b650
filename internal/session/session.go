package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"mediachat/internal/audio"
	"mediachat/internal/chromemdb"
	"mediachat/internal/config"
	"mediachat/internal/embedding"
	"mediachat/internal/helper"
	"mediachat/internal/llmservice"
	"mediachat/internal/metrics"
	"mediachat/internal/models"
	"mediachat/internal/parser"
	"mediachat/internal/rag"
	"mediachat/internal/vqa"
)

// Routes a turn can take
const (
	RouteImage = "image"
	RouteAudio = "audio"
	RouteText  = "text"
)

// Store is the knowledge base owned by the session.
type Store interface {
	rag.KnowledgeBase
	Close() error
}

// Speech transcribes audio files and speaks answers.
type Speech interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Synthesize(ctx context.Context, text string) (string, error)
}

type Deps struct {
	LLM      llms.Model
	Store    Store
	Ingestor rag.Ingestor
	Speech   Speech
	VQA      vqa.Answerer
}

type Options struct {
	Chain          rag.Options
	TempDir        string
	SpeakResponses bool
}

// State is the session's mode, as shown to the user.
type State struct {
	PDFMode         bool
	KnowledgeDirty  bool
	PendingQuestion string
	PDFs            []string
	Image           string
	Audio           string
}

// Turn is the outcome of one Submit.
type Turn struct {
	Question string
	Route    string
	Answer   string

	// Transcript is set on the audio route when transcription worked.
	Transcript string
	// TranscriptionErr is set instead of an answer when it did not.
	TranscriptionErr error

	Sources  []string
	Degraded bool
	// KnowledgeErr is a failed knowledge update; the turn is still answered.
	KnowledgeErr error

	// AudioPath is the spoken answer, deleted when the session closes.
	AudioPath string
	SpeechErr error
}

// Controller owns everything a chat session needs: history, knowledge
// base, attachments and the cached chain. One turn runs at a time.
type Controller struct {
	id   string
	deps Deps
	opts Options

	mu       sync.Mutex
	history  *rag.History
	state    State
	chain    rag.Chain
	pdfs     []models.Upload
	image    *models.Upload
	audio    *models.Upload
	spoken   []string
	closed   bool
	closeErr error
}

func New(deps Deps, opts Options) *Controller {
	id, err := helper.GenerateUUID()
	if err != nil {
		log.Warn().Err(err).Msg("No session id")
	}
	return &Controller{id: id, deps: deps, opts: opts, history: rag.NewHistory()}
}

// ID identifies the session in logs.
func (c *Controller) ID() string {
	return c.id
}

// NewFromConfig wires the backends described by cfg.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Controller, error) {
	llm, err := llmservice.NewChatModel(&cfg.ChatLLM)
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	store, err := chromemdb.Open(ctx, cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	answerer, err := vqa.New(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("vqa: %w", err)
	}

	return New(Deps{
		LLM:      llm,
		Store:    store,
		Ingestor: parser.NewIngestor(cfg.TempDir(), cfg.RAG.Extensions),
		Speech:   audio.NewProcessorFromConfig(cfg),
		VQA:      answerer,
	}, Options{
		Chain: rag.Options{
			Window:       cfg.RAG.HistoryWindow,
			Timeout:      cfg.Timeouts.LLM,
			TopK:         cfg.RAG.TopK,
			ChunkSize:    cfg.RAG.ChunkSize,
			ChunkOverlap: cfg.RAG.ChunkOverlap,
		},
		TempDir:        cfg.TempDir(),
		SpeakResponses: cfg.Audio.Speak(),
	}), nil
}

// State returns a snapshot of the session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.PDFs = make([]string, len(c.pdfs))
	for i, up := range c.pdfs {
		s.PDFs[i] = up.Name
	}
	if c.image != nil {
		s.Image = c.image.Name
	}
	if c.audio != nil {
		s.Audio = c.audio.Name
	}
	return s
}

// History returns every turn so far.
func (c *Controller) History() []models.ConversationTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Messages()
}

// SetPDFMode switches between the plain and the RAG chain. Turning it on
// schedules a knowledge update so the store matches the uploaded set.
func (c *Controller) SetPDFMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.PDFMode = on
	c.chain = nil
	if on {
		c.state.KnowledgeDirty = true
	}
	log.Debug().Bool("pdf_mode", on).Bool("dirty", c.state.KnowledgeDirty).Msg("PDF mode changed")
}

// UploadPDFs replaces the uploaded PDF set. A non-empty set turns PDF mode
// on; an empty one turns it off and empties the store on the next sync.
func (c *Controller) UploadPDFs(files []models.Upload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(files) == 0 {
		c.pdfs = nil
		c.chain = nil
		c.state.PDFMode = false
		c.state.KnowledgeDirty = true
		log.Debug().Msg("PDFs cleared")
		return
	}
	if !c.state.PDFMode {
		c.state.PDFMode = true
		c.chain = nil
	}
	c.pdfs = files
	c.state.KnowledgeDirty = true
	log.Debug().Int("files", len(files)).Msg("PDFs uploaded")
}

// AttachImage sets the image slot; nil clears it.
func (c *Controller) AttachImage(file *models.Upload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.image = file
}

// AttachAudio sets the audio slot; nil clears it.
func (c *Controller) AttachAudio(file *models.Upload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = file
}

// Sync makes sure a chain exists for the current mode and applies a pending
// knowledge update. With no PDFs uploaded the store is emptied. A failed
// update stays pending, unless the files could not be parsed at all, in
// which case the store is emptied too.
func (c *Controller) Sync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sync(ctx)
}

func (c *Controller) sync(ctx context.Context) error {
	if c.closed {
		return chromemdb.ErrClosed
	}
	if c.chain == nil {
		if c.state.PDFMode {
			c.chain = rag.NewRAGChain(c.deps.LLM, c.history, c.deps.Store, c.deps.Ingestor, c.opts.Chain)
		} else {
			c.chain = rag.NewPlainChain(c.deps.LLM, c.history, c.opts.Chain)
		}
	}

	if !c.state.KnowledgeDirty {
		return nil
	}
	if len(c.pdfs) == 0 {
		return c.purge(ctx)
	}
	ragChain, ok := c.chain.(*rag.RAGChain)
	if !ok {
		return nil
	}
	start := time.Now()
	if err := ragChain.UpdateKnowledgeBase(ctx, c.pdfs); err != nil {
		if errors.Is(err, models.ErrParse) {
			if perr := c.purge(ctx); perr != nil {
				log.Warn().Err(perr).Msg("Failed to empty knowledge base")
			}
		}
		return fmt.Errorf("update knowledge base: %w", err)
	}
	c.state.KnowledgeDirty = false
	log.Info().Int("files", len(c.pdfs)).Dur("took", time.Since(start)).Msg("Knowledge base updated")
	return nil
}

// purge resyncs the store to an empty batch, dropping every chunk.
func (c *Controller) purge(ctx context.Context) error {
	res, err := c.deps.Store.Index(ctx, nil)
	if err != nil {
		return fmt.Errorf("empty knowledge base: %w", err)
	}
	c.state.KnowledgeDirty = false
	log.Info().Int("deleted", res.Deleted).Msg("Knowledge base emptied")
	return nil
}

// Submit answers question. An attached image takes precedence over an
// attached audio file, which takes precedence over plain text. A blank
// question is ignored and yields a nil Turn.
func (c *Controller) Submit(ctx context.Context, question string) (*Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.PendingQuestion = question
	defer func() { c.state.PendingQuestion = "" }()

	if c.closed {
		return nil, chromemdb.ErrClosed
	}
	turn := &Turn{Question: question}
	// the RAG chain falls back to the bare question while the store lags
	if err := c.sync(ctx); err != nil {
		log.Warn().Err(err).Str("session", c.id).Str("kind", models.Kind(err)).Msg("Knowledge update failed")
		turn.KnowledgeErr = err
	}

	start := time.Now()
	var err error
	switch {
	case c.image != nil:
		turn.Route = RouteImage
		err = c.answerImage(ctx, turn)
	case c.audio != nil:
		turn.Route = RouteAudio
		err = c.answerAudio(ctx, turn)
	default:
		turn.Route = RouteText
		err = c.answerText(ctx, turn)
	}
	metrics.ObserveTurn(turn.Route, time.Since(start), models.Kind(err))
	if err != nil {
		log.Error().Err(err).Str("session", c.id).Str("route", turn.Route).Str("kind", models.Kind(err)).Msg("Turn failed")
		return nil, err
	}

	log.Info().Str("session", c.id).Str("route", turn.Route).Dur("took", time.Since(start)).Msg("Turn answered")

	if c.opts.SpeakResponses && turn.Answer != "" && c.deps.Speech != nil {
		path, err := c.deps.Speech.Synthesize(ctx, turn.Answer)
		if err != nil {
			log.Warn().Err(err).Msg("Speech synthesis failed")
			turn.SpeechErr = err
		} else {
			c.spoken = append(c.spoken, path)
			turn.AudioPath = path
		}
	}
	return turn, nil
}

func (c *Controller) answerText(ctx context.Context, turn *Turn) error {
	answer, err := c.chain.Respond(ctx, turn.Question)
	if err != nil {
		return err
	}
	turn.Answer = answer
	if ragChain, ok := c.chain.(*rag.RAGChain); ok && ragChain.Last() != nil {
		turn.Sources = ragChain.Last().Sources()
		turn.Degraded = ragChain.Last().Degraded
	}
	return nil
}

// answerImage sends the image to the VQA backend. The exchange is recorded
// in the history so later text turns can refer to it.
func (c *Controller) answerImage(ctx context.Context, turn *Turn) error {
	path, err := c.saveAttachment(c.image, "", "")
	if err != nil {
		return err
	}
	defer os.Remove(path)

	answer, err := c.deps.VQA.Answer(ctx, path, turn.Question)
	if err != nil {
		return err
	}
	turn.Answer = answer
	c.history.Append(models.RoleUser, turn.Question)
	c.history.Append(models.RoleAssistant, answer)
	return nil
}

// answerAudio transcribes the attachment and asks the chain with a prompt
// combining transcript and question. A failed transcription is reported in
// the turn and no backend call is made.
func (c *Controller) answerAudio(ctx context.Context, turn *Turn) error {
	path, err := c.saveAttachment(c.audio, ".mp3", ".mp3", ".wav")
	if err != nil {
		return err
	}
	defer os.Remove(path)

	transcript, err := c.deps.Speech.Transcribe(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("kind", models.Kind(err)).Msg("Transcription failed")
		turn.TranscriptionErr = err
		return nil
	}
	turn.Transcript = transcript

	answer, err := c.chain.Respond(ctx, AudioPrompt(transcript, turn.Question))
	if err != nil {
		return err
	}
	turn.Answer = answer
	return nil
}

// AudioPrompt combines a transcript with the user's question. Questions
// about the audio itself ("what ... audio") get the transcript-first form.
func AudioPrompt(transcript, question string) string {
	q := strings.ToLower(question)
	if strings.Contains(q, "what") && strings.Contains(q, "audio") {
		return fmt.Sprintf(models.AudioQuestionTemplate, transcript, question)
	}
	return fmt.Sprintf(models.AudioContextTemplate, transcript, question)
}

// saveAttachment writes an upload under the temp directory with a sanitized
// name. With a fallback, names without one of exts get it appended.
func (c *Controller) saveAttachment(up *models.Upload, fallback string, exts ...string) (string, error) {
	if err := helper.CreateFolder(c.opts.TempDir); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrIO, err)
	}
	name := helper.SanitizeFilename(up.Name)
	if fallback != "" {
		name = helper.EnsureExtension(name, fallback, exts...)
	}
	path := filepath.Join(c.opts.TempDir, name)
	if err := os.WriteFile(path, up.Data, 0o644); err != nil {
		return "", fmt.Errorf("%w: save %s: %w", models.ErrIO, name, err)
	}
	log.Debug().Str("file", path).Int("bytes", len(up.Data)).Msg("Saved attachment")
	return path, nil
}

// Close closes the knowledge base and deletes every synthesized answer.
// Calling it again returns the first result.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.closeErr
	}
	c.closed = true
	c.chain = nil

	var errs []error
	if c.deps.Store != nil {
		errs = append(errs, c.deps.Store.Close())
	}
	for _, path := range c.spoken {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	c.spoken = nil
	c.closeErr = errors.Join(errs...)
	return c.closeErr
}
