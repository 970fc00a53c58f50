package memory

import "errors"

var (
	ErrEmptyText         = errors.New("empty text")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Metadata describes one stored conversation turn.
type Metadata struct {
	Timestamp         string            `json:"timestamp"`
	UserInput         string            `json:"user_input"`
	AssistantResponse string            `json:"assistant_response"`
	Context           string            `json:"context"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// Entry is a stored record. Position is its insertion order.
type Entry struct {
	ID       string
	Position int
	Text     string
	Metadata Metadata
}

// Result is a retrieved entry with its distance to the query.
type Result struct {
	ID         string
	Text       string
	Metadata   Metadata
	Distance   float64
	Similarity float64
}

type Stats struct {
	TotalEntries int
	Location     string
}
