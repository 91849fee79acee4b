package api

import "time"

// Change operations
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Document is the wire representation of a document
type Document struct {
	UpdatedAt time.Time      `json:"updated_at"`
	Fields    map[string]any `json:"fields"`
	ID        string         `json:"id"`
	Rev       string         `json:"rev"`
	Deleted   bool           `json:"deleted"`
}

// Change is one mutation of a single document.
// Document is absent for delete operations.
type Change struct {
	Timestamp  time.Time `json:"timestamp"`
	Document   *Document `json:"document,omitempty"`
	Op         string    `json:"op"`
	DocumentID string    `json:"document_id"`
	Seq        int64     `json:"seq,omitempty"` // Seq server-assigned, zero on client-originated changes
}

// Checkpoint maps collection names to the highest sequence the client has seen
type Checkpoint struct {
	UpdatedAt time.Time        `json:"updated_at"`
	Sequences map[string]int64 `json:"sequences"`
}

// PushRequest carries client-local changes for one collection
type PushRequest struct {
	Checkpoint Checkpoint `json:"checkpoint"`
	Collection string     `json:"collection"`
	Changes    []Change   `json:"changes"`
}

// Conflict reports a rejected change together with the authoritative
// document that won
type Conflict struct {
	ServerDocument *Document `json:"server_document,omitempty"`
	DocumentID     string    `json:"document_id"`
}

// PushResponse acknowledges a push. Success is false iff Conflicts is
// non-empty; changes not listed in Conflicts were applied.
type PushResponse struct {
	Checkpoint Checkpoint `json:"checkpoint"`
	Conflicts  []Conflict `json:"conflicts,omitempty"`
	Success    bool       `json:"success"`
}

// PullRequest asks for changes after the given checkpoint.
// Limit of zero means the server default page size.
type PullRequest struct {
	Checkpoint  Checkpoint `json:"checkpoint"`
	Collections []string   `json:"collections"`
	Limit       int        `json:"limit,omitempty"`
}

// PullResponse returns changes per requested collection. HasMore signals
// that at least one collection was truncated at the page limit and the
// client should pull again with the returned checkpoint.
type PullResponse struct {
	Checkpoint Checkpoint          `json:"checkpoint"`
	Changes    map[string][]Change `json:"changes"`
	HasMore    bool                `json:"has_more"`
}

// ErrorMessage reports a message that could not be processed. It is never
// used for document conflicts, which travel in PushResponse.
type ErrorMessage struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
