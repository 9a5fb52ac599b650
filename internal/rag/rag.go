package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"mediachat/internal/chromemdb"
	"mediachat/internal/llmservice"
	"mediachat/internal/metrics"
	"mediachat/internal/models"
)

// Chain answers one user input at a time, recording the exchange in its
// history.
type Chain interface {
	Respond(ctx context.Context, input string) (string, error)
}

// KnowledgeBase is the vector store as seen by the RAG chain.
type KnowledgeBase interface {
	Index(ctx context.Context, chunks []models.Chunk) (chromemdb.IndexResult, error)
	Retrieve(ctx context.Context, query string, k int) ([]models.SearchResult, error)
}

// Ingestor turns uploads into chunks.
type Ingestor interface {
	Ingest(uploads []models.Upload, chunkSize, overlap int) ([]models.Chunk, error)
}

type Options struct {
	// Window is the number of history messages sent to the backend, the
	// new user input included.
	Window       int
	Timeout      time.Duration
	TopK         int
	ChunkSize    int
	ChunkOverlap int
}

// PlainChain passes the windowed history straight to the backend.
type PlainChain struct {
	llm     llms.Model
	history *History
	opts    Options
}

func NewPlainChain(llm llms.Model, history *History, opts Options) *PlainChain {
	return &PlainChain{llm: llm, history: history, opts: opts}
}

// Respond makes a single backend call. On failure the user turn is taken
// back out of the history and the error is returned as is.
func (c *PlainChain) Respond(ctx context.Context, input string) (string, error) {
	mark := c.history.Len()
	c.history.Append(models.RoleUser, input)

	messages := llmservice.MessagesFromTurns(c.history.Last(c.opts.Window))
	reply, err := llmservice.GenerateContent(ctx, c.llm, c.opts.Timeout, messages)
	if err != nil {
		c.history.Truncate(mark)
		return "", err
	}
	c.history.Append(models.RoleAssistant, reply)
	return reply, nil
}

// Composition is the retrieval-augmented prompt built for one question.
type Composition struct {
	Question string
	Context  string
	Prompt   string
	Results  []models.SearchResult
	// Degraded is set when the answer was produced without context.
	Degraded bool
}

// Sources lists the distinct "file p.N" references of the retrieved chunks.
func (c *Composition) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range c.Results {
		ref := fmt.Sprintf("%s p.%d", r.Chunk.Source, r.Chunk.Page)
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}

// RAGChain retrieves context from the knowledge base before every call.
type RAGChain struct {
	llm      llms.Model
	history  *History
	kb       KnowledgeBase
	ingestor Ingestor
	opts     Options
	last     *Composition
}

func NewRAGChain(llm llms.Model, history *History, kb KnowledgeBase, ingestor Ingestor, opts Options) *RAGChain {
	return &RAGChain{llm: llm, history: history, kb: kb, ingestor: ingestor, opts: opts}
}

// Compose retrieves the top chunks for question and builds the prompt.
// Chunk contents are joined with a blank line in retrieval order.
func (c *RAGChain) Compose(ctx context.Context, question string) (*Composition, error) {
	results, err := c.kb.Retrieve(ctx, question, c.opts.TopK)
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Chunk.Content)
	}
	context := strings.Join(parts, models.ContextSeparator)
	return &Composition{
		Question: question,
		Context:  context,
		Prompt:   fmt.Sprintf(models.RAGPromptTemplate, context, question),
		Results:  results,
	}, nil
}

// Respond answers from retrieved context. Prior history turns are sent as
// chat messages ahead of the composed prompt. If retrieval or the backend
// fails, the raw input is sent without context instead; only when that
// fails too is an error returned.
func (c *RAGChain) Respond(ctx context.Context, input string) (string, error) {
	prior := c.history.Last(c.opts.Window - 1)

	comp, err := c.Compose(ctx, input)
	var reply string
	if err == nil {
		messages := llmservice.MessagesFromTurns(prior)
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, comp.Prompt))
		reply, err = llmservice.GenerateContent(ctx, c.llm, c.opts.Timeout, messages)
	}

	if err != nil {
		log.Warn().Err(err).Str("kind", models.Kind(err)).Msg("RAG call failed, answering without context")
		metrics.RAGFallbacksTotal.Inc()
		comp = &Composition{Question: input, Prompt: input, Degraded: true}

		messages := llmservice.MessagesFromTurns(prior)
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input))
		reply, err = llmservice.GenerateContent(ctx, c.llm, c.opts.Timeout, messages)
		if err != nil {
			c.last = comp
			return "", err
		}
	}

	c.last = comp
	c.history.Append(models.RoleUser, input)
	c.history.Append(models.RoleAssistant, reply)
	return reply, nil
}

// Last returns the composition used by the latest Respond call, or nil.
func (c *RAGChain) Last() *Composition {
	return c.last
}

// UpdateKnowledgeBase ingests uploads and re-indexes the knowledge base.
// Indexing is a full resync, so calling it again with the same uploads
// changes nothing.
func (c *RAGChain) UpdateKnowledgeBase(ctx context.Context, uploads []models.Upload) error {
	chunks, err := c.ingestor.Ingest(uploads, c.opts.ChunkSize, c.opts.ChunkOverlap)
	if err != nil {
		return err
	}
	res, err := c.kb.Index(ctx, chunks)
	if err != nil {
		return err
	}
	metrics.IndexedChunksTotal.WithLabelValues("added").Add(float64(res.Added))
	metrics.IndexedChunksTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
	metrics.IndexedChunksTotal.WithLabelValues("deleted").Add(float64(res.Deleted))
	return nil
}
