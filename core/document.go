package core

import "github.com/google/uuid"

// Document is a retrievable unit of text. Score is only meaningful on
// documents returned from a search and is zero otherwise.
type Document struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// NewDocument creates a document with a fresh identifier.
func NewDocument(content string, metadata map[string]any) Document {
	return Document{ID: NewID(), Content: content, Metadata: metadata}
}

// NewID generates a new unique identifier for sessions and documents.
func NewID() string { return uuid.NewString() }
