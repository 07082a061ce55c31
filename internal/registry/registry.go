// Package registry is the Codebase Registry: a shared map of codebase
// metadata guarded by a coarse lock for create/delete and atomic field
// updates for ingestion progress (spec §3 Codebase, §5).
package registry

import (
	"errors"
	"sync"
	"time"
)

// Status is a codebase's lifecycle state. It advances monotonically
// queued -> processing -> {completed | failed} (spec §3 invariant).
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Step mirrors the ingestion workflow's current_step projection (spec §6).
type Step string

const (
	StepValidating Step = "validating"
	StepCloning    Step = "cloning"
	StepParsing    Step = "parsing"
	StepChunking   Step = "chunking"
	StepEmbedding  Step = "embedding"
	StepIndexing   Step = "indexing"
	StepComplete   Step = "complete"
)

// OriginKind distinguishes how the codebase's source was supplied.
type OriginKind string

const (
	OriginArchive        OriginKind = "archive"
	OriginRemoteCloneURL OriginKind = "remote-clone-url"
)

// FileSecretSummary is the per-file secret count breakdown (spec §3, §6).
type FileSecretSummary struct {
	Count int
	Types []string
}

// Codebase is a logical unit of indexed source (spec §3).
type Codebase struct {
	ID              string
	Name            string
	Description     string
	OriginKind      OriginKind
	OriginRef       string
	Status          Status
	TotalFiles      int
	ProcessedFiles  int
	PrimaryLanguage string
	Languages       []string
	ByteSize        int64
	WorkflowHandle  string
	StagingPath     string
	SecretsDetected int
	SecretSummary   map[string]FileSecretSummary
	CurrentStep     Step
	Error           string
	ContentHash     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var (
	ErrNotFound              = errors.New("registry: codebase not found")
	ErrInvalidTransition     = errors.New("registry: invalid status transition")
	ErrProcessedExceedsTotal = errors.New("registry: processed_files exceeds total_files")
)

// Registry is the shared codebase metadata store.
type Registry struct {
	mu        sync.RWMutex
	codebases map[string]*Codebase
	now       func() time.Time
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{codebases: make(map[string]*Codebase), now: time.Now}
}

// Create registers a new codebase in the queued state.
func (r *Registry) Create(id, name, description string, origin OriginKind, originRef string) *Codebase {
	now := r.now()
	cb := &Codebase{
		ID:          id,
		Name:        name,
		Description: description,
		OriginKind:  origin,
		OriginRef:   originRef,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.codebases[id] = cb
	r.mu.Unlock()
	return cb
}

// Get returns a copy of the codebase's current state.
func (r *Registry) Get(id string) (Codebase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.codebases[id]
	if !ok {
		return Codebase{}, ErrNotFound
	}
	return *cb, nil
}

// List returns a snapshot of every registered codebase.
func (r *Registry) List() []Codebase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Codebase, 0, len(r.codebases))
	for _, cb := range r.codebases {
		out = append(out, *cb)
	}
	return out
}

// Delete removes a codebase from the registry. Cascading deletion of
// vectors, sessions, and staged files is the caller's responsibility
// (spec §3 Codebase lifecycle).
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codebases, id)
}

// Advance transitions a codebase's status, enforcing the monotonic
// queued -> processing -> {completed | failed} invariant.
func (r *Registry) Advance(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.codebases[id]
	if !ok {
		return ErrNotFound
	}
	if !validTransition(cb.Status, status) {
		return ErrInvalidTransition
	}
	cb.Status = status
	cb.UpdatedAt = r.now()
	return nil
}

func validTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusQueued:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false // completed/failed are terminal
	}
}

// UpdateProgress sets the total/processed file counts and current step
// reported by the ingestion workflow's progress signal (spec §4.9 §6).
func (r *Registry) UpdateProgress(id string, totalFiles, processedFiles int, step Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.codebases[id]
	if !ok {
		return ErrNotFound
	}
	if totalFiles > 0 && processedFiles > totalFiles {
		return ErrProcessedExceedsTotal
	}
	if totalFiles > 0 {
		cb.TotalFiles = totalFiles
	}
	cb.ProcessedFiles = processedFiles
	cb.CurrentStep = step
	cb.UpdatedAt = r.now()
	return nil
}

// SetLanguages records detected languages, primary first.
func (r *Registry) SetLanguages(id string, primary string, all []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.codebases[id]
	if !ok {
		return ErrNotFound
	}
	cb.PrimaryLanguage = primary
	cb.Languages = all
	cb.UpdatedAt = r.now()
	return nil
}

// SetStaging records the workflow handle and staging path.
func (r *Registry) SetStaging(id, workflowHandle, stagingPath string, byteSize int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.codebases[id]
	if !ok {
		return ErrNotFound
	}
	cb.WorkflowHandle = workflowHandle
	cb.StagingPath = stagingPath
	cb.ByteSize = byteSize
	cb.UpdatedAt = r.now()
	return nil
}

// RecordSecrets merges one file's secret findings into the aggregate
// summary (spec §4.1 per-file aggregation, §4.9 Finalise).
func (r *Registry) RecordSecrets(id, filePath string, typeCounts map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.codebases[id]
	if !ok {
		return ErrNotFound
	}
	if cb.SecretSummary == nil {
		cb.SecretSummary = make(map[string]FileSecretSummary)
	}
	total := 0
	types := make([]string, 0, len(typeCounts))
	for typ, n := range typeCounts {
		total += n
		types = append(types, typ)
	}
	if total == 0 {
		return nil
	}
	cb.SecretSummary[filePath] = FileSecretSummary{Count: total, Types: types}
	cb.SecretsDetected += total
	cb.UpdatedAt = r.now()
	return nil
}

// UnchangedCompletedHash reports whether id is already completed with the
// given content hash, the reingest-policy check backing spec §4.9's
// idempotence requirement: a re-run over identical content is a no-op
// instead of a full rebuild. An empty hash never matches.
func (r *Registry) UnchangedCompletedHash(id, hash string) bool {
	if hash == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.codebases[id]
	if !ok {
		return false
	}
	return cb.Status == StatusCompleted && cb.ContentHash == hash
}

// SetContentHash records the content hash used by the next
// UnchangedCompletedHash check (spec §4.9, "Idempotency-key based
// re-ingestion").
func (r *Registry) SetContentHash(id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.codebases[id]
	if !ok {
		return ErrNotFound
	}
	cb.ContentHash = hash
	cb.UpdatedAt = r.now()
	return nil
}

// Complete marks a codebase completed. Once completed, processed/total
// counts are frozen (spec §3 invariant) — later calls to UpdateProgress
// still validate but callers should stop issuing them.
func (r *Registry) Complete(id string) error {
	return r.Advance(id, StatusCompleted)
}

// Fail marks a codebase failed and preserves the terminal error string.
func (r *Registry) Fail(id, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.codebases[id]
	if !ok {
		return ErrNotFound
	}
	if !validTransition(cb.Status, StatusFailed) {
		return ErrInvalidTransition
	}
	cb.Status = StatusFailed
	cb.Error = errMsg
	cb.UpdatedAt = r.now()
	return nil
}
