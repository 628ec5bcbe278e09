package store

import (
	"errors"
	"time"
)

// Document class values.
const (
	ClassCore      = "core"
	ClassEphemeral = "ephemeral"
)

var (
	// ErrNotFound distinguishes "not yet written" from storage failures
	// so callers can render a starter template without masking real
	// errors.
	ErrNotFound = errors.New("store: document not found")

	// ErrDimensionMismatch rejects vectors whose dimension differs from
	// the one the store was opened with.
	ErrDimensionMismatch = errors.New("store: vector dimension mismatch")

	// ErrIndexNotReady means index provisioning did not complete within
	// the bounded retry budget; the caller should try again shortly.
	ErrIndexNotReady = errors.New("store: search index not ready, try again shortly")
)

// Document is a named, versioned memory record.
type Document struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	MemoryName string `json:"memoryName"`
	Class      string `json:"class"`
	Content    string `json:"content"`

	Version        int        `json:"version"`
	AccessCount    int        `json:"accessCount"`
	LastModified   time.Time  `json:"lastModified"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`

	HasVector bool      `json:"hasVector"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CodeChunk is one persisted chunk of an indexed codebase.
type CodeChunk struct {
	ID            string `json:"id"`
	ProjectID     string `json:"projectId"`
	CodebaseMapID string `json:"codebaseMapId"`
	FilePath      string `json:"filePath"`

	ChunkType string `json:"type"`
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Content   string `json:"content"`
	Context   string `json:"context"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`

	SearchableText string   `json:"searchableText"`
	Dependencies   []string `json:"dependencies,omitempty"`
	Exports        []string `json:"exports,omitempty"`
	Patterns       []string `json:"patterns,omitempty"`
	Size           int      `json:"size"`
}

// Execution statuses. Complete and failed are terminal.
const (
	StatusPlanning  = "planning"
	StatusExecuting = "executing"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
)

// ExecutionState tracks repeated invocations of one logical task.
type ExecutionState struct {
	ProjectID      string    `json:"projectId"`
	TaskName       string    `json:"taskName"`
	ExecutionID    string    `json:"executionId"`
	Status         string    `json:"status"`
	CallCount      int       `json:"callCount"`
	LastCalled     time.Time `json:"lastCalled"`
	TotalSteps     int       `json:"totalSteps"`
	CompletedSteps []string  `json:"completedSteps"`
}

// IsTerminal reports whether the execution reached a terminal status.
func (e *ExecutionState) IsTerminal() bool {
	return e.Status == StatusComplete || e.Status == StatusFailed
}

// Source identifies which index a search candidate came from.
type Source string

const (
	SourceMemory Source = "memory"
	SourceCode   Source = "code"
)

// Candidate is one raw retrieval hit from a single index leg.
type Candidate struct {
	Source   Source
	ID       string
	Score    float64 // higher is better, leg-local scale
	Title    string  // memory name or chunk name
	FilePath string  // code candidates only
	Content  string
}
