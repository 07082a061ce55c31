package ingest

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/registry"
)

// WorkflowInput starts one codebase's ingestion (spec §4.9).
type WorkflowInput struct {
	CodebaseID             string
	OriginKind             registry.OriginKind
	OriginRef              string
	SizeBytes              int64
	Policy                 config.RetryPolicy
	ActivityTimeoutSeconds int
}

// ProgressQuery is the payload returned by the "progress" query handler,
// backing the codebase status-query endpoint (spec §4.9, §6).
type ProgressQuery struct {
	CurrentStep    registry.Step
	ProcessedFiles int
	TotalFiles     int
}

// Workflow drives one codebase through the §4.9 state machine: queued ->
// validating -> cloning_or_extracting -> parsing -> chunking -> embedding
// -> indexing -> completed, or failed on unrecoverable error. Each
// activity call uses the same exponential-backoff retry policy (spec §5:
// initial 2s, multiplier 2.0, cap 60s, budget 30 min).
func Workflow(ctx workflow.Context, in WorkflowInput) error {
	progress := ProgressQuery{CurrentStep: registry.StepValidating}
	if err := workflow.SetQueryHandler(ctx, "progress", func() (ProgressQuery, error) {
		return progress, nil
	}); err != nil {
		return err
	}

	activityTimeout := time.Duration(in.ActivityTimeoutSeconds) * time.Second
	if activityTimeout <= 0 {
		activityTimeout = 60 * time.Second
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout:    activityTimeout,
		ScheduleToCloseTimeout: in.Policy.Budget,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    in.Policy.Initial,
			BackoffCoefficient: in.Policy.Multiplier,
			MaximumInterval:    in.Policy.Cap,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities

	var validateOut ValidateOutput
	if err := workflow.ExecuteActivity(ctx, a.Validate, ValidateInput{
		CodebaseID: in.CodebaseID,
		OriginKind: in.OriginKind,
		OriginRef:  in.OriginRef,
		SizeBytes:  in.SizeBytes,
	}).Get(ctx, &validateOut); err != nil {
		return failWorkflow(ctx, in.CodebaseID, err)
	}
	if validateOut.Unchanged {
		// Re-ingestion of identical content: the codebase is already
		// completed under this hash, so the remaining activities (and the
		// clone/extract they depend on) are skipped entirely (spec §4.9
		// idempotence, §C "Idempotency-key based re-ingestion").
		progress.CurrentStep = registry.StepComplete
		return nil
	}

	progress.CurrentStep = registry.StepCloning
	var materialiseOut MaterialiseOutput
	if err := workflow.ExecuteActivity(ctx, a.Materialise, MaterialiseInput{
		CodebaseID:  in.CodebaseID,
		ShouldClone: validateOut.ShouldClone,
		OriginRef:   in.OriginRef,
	}).Get(ctx, &materialiseOut); err != nil {
		return failWorkflow(ctx, in.CodebaseID, err)
	}
	// Cancellation is observed at file-level checkpoint boundaries between
	// activities (spec §4.9); a cancelled workflow context short-circuits
	// here instead of starting the next stage.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	progress.CurrentStep = registry.StepParsing
	progress.TotalFiles = len(materialiseOut.Manifest)
	var scanOut ScanAndParseOutput
	if err := workflow.ExecuteActivity(ctx, a.ScanAndParse, ScanAndParseInput{
		StagingPath: materialiseOut.StagingPath,
		Manifest:    materialiseOut.Manifest,
	}).Get(ctx, &scanOut); err != nil {
		return failWorkflow(ctx, in.CodebaseID, err)
	}

	progress.CurrentStep = registry.StepChunking
	var chunkOut ChunkOutput
	if err := workflow.ExecuteActivity(ctx, a.Chunk, ChunkInput{
		CodebaseID: in.CodebaseID,
		Files:      scanOut.Files,
	}).Get(ctx, &chunkOut); err != nil {
		return failWorkflow(ctx, in.CodebaseID, err)
	}

	progress.CurrentStep = registry.StepEmbedding
	var embedOut EmbedOutput
	if err := workflow.ExecuteActivity(ctx, a.Embed, EmbedInput{
		Chunks: chunkOut.Chunks,
	}).Get(ctx, &embedOut); err != nil {
		return failWorkflow(ctx, in.CodebaseID, err)
	}

	progress.CurrentStep = registry.StepIndexing
	var indexOut IndexOutput
	if err := workflow.ExecuteActivity(ctx, a.Index, IndexInput{
		CodebaseID: in.CodebaseID,
		Chunks:     chunkOut.Chunks,
		Vectors:    embedOut.Vectors,
	}).Get(ctx, &indexOut); err != nil {
		return failWorkflow(ctx, in.CodebaseID, err)
	}
	progress.ProcessedFiles = len(scanOut.Files)

	secretCounts := make(map[string]map[string]int, len(scanOut.Files))
	languageSet := make(map[string]bool)
	var primaryLang string
	var primaryCount int
	for _, f := range scanOut.Files {
		if len(f.SecretCounts) > 0 {
			secretCounts[f.Path] = f.SecretCounts
		}
		if f.Language == "" {
			continue
		}
		languageSet[f.Language] = true
	}
	languageCounts := make(map[string]int)
	for _, f := range scanOut.Files {
		languageCounts[f.Language]++
	}
	for lang, count := range languageCounts {
		if lang != "" && count > primaryCount {
			primaryLang, primaryCount = lang, count
		}
	}
	languages := make([]string, 0, len(languageSet))
	for lang := range languageSet {
		languages = append(languages, lang)
	}

	progress.CurrentStep = registry.StepComplete
	if err := workflow.ExecuteActivity(ctx, a.Finalise, FinaliseInput{
		CodebaseID:     in.CodebaseID,
		SecretCounts:   secretCounts,
		TotalFiles:     len(materialiseOut.Manifest),
		ProcessedFiles: len(scanOut.Files),
		PrimaryLang:    primaryLang,
		Languages:      languages,
		ContentHash:    validateOut.ContentHash,
	}).Get(ctx, nil); err != nil {
		return failWorkflow(ctx, in.CodebaseID, err)
	}
	return nil
}

func failWorkflow(ctx workflow.Context, codebaseID string, activityErr error) error {
	workflow.GetLogger(ctx).Error("ingestion workflow failed", "codebaseID", codebaseID, "error", activityErr)
	return activityErr
}
