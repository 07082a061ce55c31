// Package ingest implements the durable ingestion workflow (spec §4.9):
// seven independently retryable activities driving a codebase from queued
// to completed, orchestrated by a Temporal workflow (workflow.go).
package ingest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"code-doc-assistant/internal/chunk"
	"code-doc-assistant/internal/codeparse"
	"code-doc-assistant/internal/embedding"
	"code-doc-assistant/internal/gitingest"
	"code-doc-assistant/internal/objectstore"
	"code-doc-assistant/internal/registry"
	"code-doc-assistant/internal/secretscan"
	"code-doc-assistant/internal/validation"
	"code-doc-assistant/internal/vectorstore"
)

// Activities bundles every external dependency the seven ingestion
// activities need. A *Activities value (possibly nil-receiver, per the
// Temporal convention of registering methods by name) is registered with
// the worker; Temporal supplies the real receiver at dispatch time.
type Activities struct {
	Staging        objectstore.ObjectStore
	Registry       *registry.Registry
	Embedder       embedding.Client
	Vectors        vectorstore.VectorStore
	Chunker        *chunk.Chunker
	MaxUploadBytes int64
	GitDepth       int
	IndexBatchSize int
}

// ValidateInput carries the admission-time facts about one ingestion
// request (spec §4.9 activity 1).
type ValidateInput struct {
	CodebaseID string
	OriginKind registry.OriginKind
	OriginRef  string
	SizeBytes  int64
}

// ValidateOutput records whether Materialise should clone or extract, and
// whether this request is a no-op re-ingestion of unchanged content.
type ValidateOutput struct {
	ShouldClone bool
	ContentHash string
	Unchanged   bool
}

// contentHash derives the idempotency key for one ingestion request: the
// origin and declared size are a cheap proxy for "same content" without
// re-reading the upload, sufficient to decide skip_if_unchanged before a
// single byte is materialised (spec §4.9, "Idempotency-key based
// re-ingestion").
func contentHash(kind registry.OriginKind, originRef string, sizeBytes int64) string {
	sum := sha256.Sum256([]byte(string(kind) + "|" + originRef + "|" + strconv.FormatInt(sizeBytes, 10)))
	return hex.EncodeToString(sum[:])
}

// Validate verifies archive integrity or URL reachability and the upload
// size cap (spec §4.9 activity 1, §8 boundary behaviour), then checks
// whether this codebase id is already completed with identical content —
// if so the remaining activities are skipped entirely (spec §4.9
// idempotence, §C "Idempotency-key based re-ingestion").
func (a *Activities) Validate(_ context.Context, in ValidateInput) (ValidateOutput, error) {
	if in.SizeBytes > a.MaxUploadBytes {
		return ValidateOutput{}, fmt.Errorf("ingest: upload of %d bytes exceeds max_upload_bytes %d", in.SizeBytes, a.MaxUploadBytes)
	}

	shouldClone := in.OriginKind == registry.OriginRemoteCloneURL
	if shouldClone {
		if _, err := url.ParseRequestURI(in.OriginRef); err != nil {
			return ValidateOutput{}, fmt.Errorf("ingest: malformed origin url: %w", err)
		}
	} else if in.OriginRef == "" {
		return ValidateOutput{}, fmt.Errorf("ingest: archive origin missing staging key")
	}

	hash := contentHash(in.OriginKind, in.OriginRef, in.SizeBytes)
	if a.Registry != nil && a.Registry.UnchangedCompletedHash(in.CodebaseID, hash) {
		return ValidateOutput{ShouldClone: shouldClone, ContentHash: hash, Unchanged: true}, nil
	}

	if a.Registry != nil {
		if err := a.Registry.Advance(in.CodebaseID, registry.StatusProcessing); err != nil {
			return ValidateOutput{}, fmt.Errorf("ingest: advance to processing: %w", err)
		}
	}
	return ValidateOutput{ShouldClone: shouldClone, ContentHash: hash}, nil
}

// MaterialiseInput carries what Materialise needs to produce a local tree.
type MaterialiseInput struct {
	CodebaseID  string
	ShouldClone bool
	OriginRef   string // clone URL, or the staging object key of the uploaded archive
}

// MaterialiseOutput is the local staging path plus the file manifest.
type MaterialiseOutput struct {
	StagingPath string
	Manifest    []ManifestEntry
	ByteSize    int64
}

// Materialise extracts the uploaded archive into staging, or shallow
// single-branch clones the remote reference, then walks the resulting tree
// into a file manifest (spec §4.9 activity 2).
func (a *Activities) Materialise(ctx context.Context, in MaterialiseInput) (MaterialiseOutput, error) {
	safeID, err := validation.ProjectID(in.CodebaseID)
	if err != nil || safeID == "" {
		return MaterialiseOutput{}, fmt.Errorf("ingest: unsafe codebase id %q: %w", in.CodebaseID, err)
	}
	stagingPath := filepath.Join(os.TempDir(), "code-doc-assistant-staging", safeID)
	if err := os.MkdirAll(stagingPath, 0o755); err != nil {
		return MaterialiseOutput{}, fmt.Errorf("ingest: create staging dir: %w", err)
	}

	if in.ShouldClone {
		if err := gitingest.Clone(ctx, in.OriginRef, stagingPath, a.GitDepth); err != nil {
			return MaterialiseOutput{}, err
		}
	} else {
		rc, attrs, err := a.Staging.Get(ctx, in.OriginRef)
		if err != nil {
			return MaterialiseOutput{}, fmt.Errorf("ingest: fetch staged archive: %w", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return MaterialiseOutput{}, fmt.Errorf("ingest: read staged archive: %w", err)
		}
		if err := extractArchive(in.OriginRef, data, stagingPath); err != nil {
			return MaterialiseOutput{}, err
		}
		_ = attrs
	}

	manifest, byteSize, err := walkManifest(stagingPath)
	if err != nil {
		return MaterialiseOutput{}, fmt.Errorf("ingest: build manifest: %w", err)
	}
	return MaterialiseOutput{StagingPath: stagingPath, Manifest: manifest, ByteSize: byteSize}, nil
}

func walkManifest(root string) ([]ManifestEntry, int64, error) {
	matcher, err := gitingest.IgnoreMatcher(root)
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: load gitignore: %w", err)
	}

	var manifest []ManifestEntry
	var total int64
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			if rel != "." && gitingest.Ignored(matcher, rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if gitingest.Ignored(matcher, rel, false) {
			return nil
		}
		manifest = append(manifest, ManifestEntry{
			Path:              rel,
			Size:              info.Size(),
			SuspectedLanguage: suspectedLanguage(filepath.Ext(path)),
		})
		total += info.Size()
		return nil
	})
	return manifest, total, err
}

// extractArchive supports the two archive formats a content-addressed
// staging upload is expected to arrive in: zip, and tar.gz.
func extractArchive(originRef string, data []byte, dest string) error {
	if strings.HasSuffix(originRef, ".zip") {
		return extractZip(data, dest)
	}
	return extractTarGz(data, dest)
}

func extractZip(data []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("ingest: open zip archive: %w", err)
	}
	for _, f := range zr.File {
		target := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("ingest: zip entry escapes staging dir: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

func extractTarGz(data []byte, dest string) error {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("ingest: open tar.gz archive: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ingest: read tar entry: %w", err)
		}
		target := filepath.Join(dest, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("ingest: tar entry escapes staging dir: %s", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

// FileResult is one file's scan-and-parse outcome.
type FileResult struct {
	Path         string
	Language     string
	Content      string // redacted
	Regions      []codeparse.Region
	SecretCounts map[string]int
}

// ScanAndParseInput carries the materialised tree to scan.
type ScanAndParseInput struct {
	StagingPath string
	Manifest    []ManifestEntry
}

// ScanAndParseOutput carries per-file results plus non-fatal warnings.
type ScanAndParseOutput struct {
	Files    []FileResult
	Warnings []string
	Skipped  []string
}

// ScanAndParse runs the Secret Scanner then the Code Parser over every
// manifest entry, skipping binaries and unsupported extensions as
// non-fatal warnings (spec §4.9 activity 3, §7 skippable-per-file).
func (a *Activities) ScanAndParse(_ context.Context, in ScanAndParseInput) (ScanAndParseOutput, error) {
	var out ScanAndParseOutput
	for _, entry := range in.Manifest {
		full := filepath.Join(in.StagingPath, entry.Path)
		raw, err := os.ReadFile(full)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: read failed: %v", entry.Path, err))
			out.Skipped = append(out.Skipped, entry.Path)
			continue
		}
		if looksBinary(raw) {
			out.Skipped = append(out.Skipped, entry.Path)
			continue
		}

		scan := secretscan.Scan(string(raw))
		regions, warn, err := codeparse.Parse(entry.Path, []byte(scan.RedactedText))
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: parse failed: %v", entry.Path, err))
			out.Skipped = append(out.Skipped, entry.Path)
			continue
		}
		if warn != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %s", warn.Path, warn.Reason))
			out.Skipped = append(out.Skipped, entry.Path)
			continue
		}

		out.Files = append(out.Files, FileResult{
			Path:         entry.Path,
			Language:     entry.SuspectedLanguage,
			Content:      scan.RedactedText,
			Regions:      regions,
			SecretCounts: secretscan.Counts(scan.Matches),
		})
	}
	return out, nil
}

// looksBinary applies the conventional null-byte heuristic over a content
// prefix; textual source files never contain NUL.
func looksBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(data[:n], 0) != -1
}

// ChunkInput carries one codebase's scanned files.
type ChunkInput struct {
	CodebaseID string
	Files      []FileResult
}

// ChunkOutput is the flattened chunk set across every file.
type ChunkOutput struct {
	Chunks []chunk.Chunk
}

// Chunk runs the chunker (spec §4.3) over every file's parsed regions
// (spec §4.9 activity 4).
func (a *Activities) Chunk(_ context.Context, in ChunkInput) (ChunkOutput, error) {
	var all []chunk.Chunk
	for _, f := range in.Files {
		all = append(all, a.Chunker.ChunkFile(in.CodebaseID, f.Path, f.Language, f.Content, f.Regions)...)
	}
	return ChunkOutput{Chunks: all}, nil
}

// EmbedInput carries the chunk set to embed.
type EmbedInput struct {
	Chunks []chunk.Chunk
}

// EmbedOutput maps each chunk id to its embedding vector.
type EmbedOutput struct {
	Vectors map[string][]float32
}

// Embed batches chunk content through the embedding client (spec §4.9
// activity 5, §4.4). A provider rate-limit that exhausts the retry budget
// surfaces as an activity error; Temporal's own retry policy (configured
// in workflow.go from the same §5 backoff parameters) handles the
// "await and resume" behaviour the spec describes as a workflow-level
// concern rather than an activity-level one.
func (a *Activities) Embed(ctx context.Context, in EmbedInput) (EmbedOutput, error) {
	texts := make([]string, len(in.Chunks))
	for i, c := range in.Chunks {
		texts[i] = c.Content
	}
	vectors, err := a.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return EmbedOutput{}, fmt.Errorf("ingest: embed: %w", err)
	}
	out := make(map[string][]float32, len(in.Chunks))
	for i, c := range in.Chunks {
		out[c.ID] = vectors[i]
	}
	return EmbedOutput{Vectors: out}, nil
}

// IndexInput carries the chunk set and its embedded vectors.
type IndexInput struct {
	CodebaseID string
	Chunks     []chunk.Chunk
	Vectors    map[string][]float32
}

// IndexOutput reports how many chunks were upserted.
type IndexOutput struct {
	Indexed int
}

// Index upserts chunks into the vector store in batches, updating the
// registry's processed-file counter as each batch commits (spec §4.9
// activity 6).
func (a *Activities) Index(ctx context.Context, in IndexInput) (IndexOutput, error) {
	batchSize := a.IndexBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	processedFiles := make(map[string]bool)
	indexed := 0
	for start := 0; start < len(in.Chunks); start += batchSize {
		end := start + batchSize
		if end > len(in.Chunks) {
			end = len(in.Chunks)
		}
		batch := in.Chunks[start:end]

		records := make([]vectorstore.Record, len(batch))
		for i, c := range batch {
			records[i] = vectorstore.Record{
				ID:           c.ID,
				Vector:       in.Vectors[c.ID],
				Document:     c.Content,
				CodebaseID:   c.CodebaseID,
				FilePath:     c.FilePath,
				LineStart:    c.LineStart,
				LineEnd:      c.LineEnd,
				Language:     c.Language,
				ChunkType:    string(c.Kind),
				Name:         c.Name,
				ParentClass:  c.EnclosingClass,
				Dependencies: c.Dependencies,
			}
			processedFiles[c.FilePath] = true
		}
		if err := a.Vectors.Upsert(ctx, records); err != nil {
			return IndexOutput{Indexed: indexed}, fmt.Errorf("ingest: index batch: %w", err)
		}
		indexed += len(records)

		if a.Registry != nil {
			_ = a.Registry.UpdateProgress(in.CodebaseID, 0, len(processedFiles), registry.StepIndexing)
		}
	}
	return IndexOutput{Indexed: indexed}, nil
}

// FinaliseInput carries the aggregate secret summary and final counts.
type FinaliseInput struct {
	CodebaseID     string
	SecretCounts   map[string]map[string]int
	TotalFiles     int
	ProcessedFiles int
	PrimaryLang    string
	Languages      []string
	ContentHash    string
}

// Finalise writes the terminal status and aggregate secret summary into
// the codebase record (spec §4.9 activity 7).
func (a *Activities) Finalise(_ context.Context, in FinaliseInput) error {
	for path, counts := range in.SecretCounts {
		if err := a.Registry.RecordSecrets(in.CodebaseID, path, counts); err != nil {
			return fmt.Errorf("ingest: finalise: record secrets: %w", err)
		}
	}
	if err := a.Registry.SetLanguages(in.CodebaseID, in.PrimaryLang, in.Languages); err != nil {
		return fmt.Errorf("ingest: finalise: set languages: %w", err)
	}
	if err := a.Registry.UpdateProgress(in.CodebaseID, in.TotalFiles, in.ProcessedFiles, registry.StepComplete); err != nil {
		return fmt.Errorf("ingest: finalise: update progress: %w", err)
	}
	if err := a.Registry.Complete(in.CodebaseID); err != nil {
		return err
	}
	if in.ContentHash != "" {
		return a.Registry.SetContentHash(in.CodebaseID, in.ContentHash)
	}
	return nil
}
