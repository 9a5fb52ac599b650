package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Role of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DocumentMetadata identifies where a page came from
type DocumentMetadata struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
}

// Document is one page of a loaded file
type Document struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Page    int    `json:"page"`
	// Index is the position of the chunk within its page.
	Index int `json:"index"`
	// Start is the rune offset of the chunk within its page.
	Start int `json:"start"`
}

// ID is derived from the chunk's source, position and content, so the same
// text uploaded twice maps to the same record.
func (c Chunk) ID() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s", c.Source, c.Page, c.Start, c.Content)))
	return hex.EncodeToString(h[:16])
}

// ConversationTurn is one message of the chat history
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Upload is an uploaded file held in memory
type Upload struct {
	Name string
	Data []byte
}

// SearchResult is a retrieved chunk with its cosine similarity to the query
type SearchResult struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity"`
}
