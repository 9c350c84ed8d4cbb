package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/docmerge/internal/config"
	"github.com/Lllllllleong/docmerge/internal/gcp"
	"github.com/Lllllllleong/docmerge/internal/models"
)

// Publishing statuses stored on the Firestore record.
const (
	StatusUploading = "UPLOADING"
)

// Publisher uploads merged documents to Cloud Storage, records each run in
// Firestore and optionally hands off to a Cloud Workflow.
type Publisher struct {
	clients *gcp.Clients
	config  config.PublishConfig
}

func NewPublisher(ctx context.Context, cfg config.PublishConfig) (*Publisher, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("publish.project_id (DOCMERGE_PROJECT_ID) must be set")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("publish.bucket (DOCMERGE_OUTPUT_BUCKET) must be set")
	}
	if cfg.Collection == "" {
		cfg.Collection = "merges"
	}
	clients, err := gcp.NewClients(ctx, cfg.ProjectID, cfg.WorkflowID != "")
	if err != nil {
		return nil, err
	}
	slog.Info("Publisher initialized.", "bucket", cfg.Bucket, "collection", cfg.Collection, "workflowId", cfg.WorkflowID)
	return &Publisher{clients: clients, config: cfg}, nil
}

func (p *Publisher) Close() error { return p.clients.Close() }

// Publish uploads the output of result. A document whose content was already
// published is detected by hash and skipped.
func (p *Publisher) Publish(ctx context.Context, result *models.MergeResult, source string) (*models.PublishResult, error) {
	logCtx := slog.With("runId", result.RunID, "output", result.OutputPath)
	logCtx.Info("Publishing merged document.")

	fileHash, err := calculateFileHash(result.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, docID, err := p.isDuplicate(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return nil, err
	}
	if isDuplicate {
		logCtx.Info("Duplicate merge output detected. Skipping.", "existingDocId", docID)
		return &models.PublishResult{RecordID: docID, Skipped: true}, nil
	}

	record := models.NewMergeRecord(source, result)
	finalStatus := record.Status
	record.FileHash = fileHash
	record.Status = StatusUploading
	docRef, _, err := p.clients.Firestore.Collection(p.config.Collection).Add(ctx, record)
	if err != nil {
		logCtx.Error("Failed to create merge record", "error", err)
		return nil, fmt.Errorf("failed to create merge record: %w", err)
	}
	logCtx = logCtx.With("recordId", docRef.ID)
	logCtx.Info("Created merge record in Firestore.")

	objectName := fmt.Sprintf("%s/%s", docRef.ID, filepath.Base(result.OutputPath))
	if err := p.uploadFile(ctx, result.OutputPath, objectName); err != nil {
		return nil, p.handleError(ctx, logCtx, docRef, "failed to upload merged document", err)
	}
	uri := fmt.Sprintf("gs://%s/%s", p.config.Bucket, objectName)

	updates := []firestore.Update{
		{Path: "status", Value: finalStatus},
		{Path: "outputUri", Value: uri},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return nil, p.handleError(ctx, logCtx, docRef, "failed to update merge record", err)
	}

	published := &models.PublishResult{OutputGCSUri: uri, RecordID: docRef.ID}
	if p.clients.Executions != nil {
		arg := models.WorkflowArgument{
			RunID:        result.RunID,
			RecordID:     docRef.ID,
			OutputGCSUri: uri,
			PageCount:    result.TotalPages,
			Incomplete:   finalStatus != models.RecordComplete,
		}
		executionID, err := p.triggerWorkflow(ctx, logCtx, docRef, arg)
		if err != nil {
			return nil, err
		}
		published.ExecutionID = executionID
	}
	logCtx.Info("Merged document published.", "gcsUri", uri)
	return published, nil
}

// RecordFailure stores a FAILED record for a run that produced no output.
func (p *Publisher) RecordFailure(ctx context.Context, source string, runErr error) error {
	record := models.MergeRecord{
		Source:       source,
		Status:       models.RecordFailed,
		ErrorDetails: runErr.Error(),
		CreatedAt:    time.Now().UTC(),
	}
	if _, _, err := p.clients.Firestore.Collection(p.config.Collection).Add(ctx, record); err != nil {
		return fmt.Errorf("failed to record merge failure: %w", err)
	}
	return nil
}

func (p *Publisher) isDuplicate(ctx context.Context, fileHash string) (bool, string, error) {
	docs, err := p.clients.Firestore.Collection(p.config.Collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (p *Publisher) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, arg models.WorkflowArgument) (string, error) {
	logCtx.Info("Triggering workflow.")
	payloadBytes, err := json.Marshal(arg)
	if err != nil {
		return "", p.handleError(ctx, logCtx, docRef, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", p.config.ProjectID, p.config.WorkflowLocation, p.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	execution, err := p.clients.Executions.CreateExecution(ctx, req)
	if err != nil {
		return "", p.handleError(ctx, logCtx, docRef, "failed to trigger workflow execution", err)
	}
	if _, err := docRef.Update(ctx, []firestore.Update{{Path: "workflowExecutionId", Value: execution.GetName()}}); err != nil {
		logCtx.Warn("Failed to store workflow execution id.", "error", err)
	}
	return execution.GetName(), nil
}

func (p *Publisher) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	updates := []firestore.Update{
		{Path: "status", Value: models.RecordFailed},
		{Path: "errorDetails", Value: fullError},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a publishing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

func (p *Publisher) uploadFile(ctx context.Context, localPath, destObject string) error {
	const maxRetries = 4
	var backoff = 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			writeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			created, err := gcp.UploadFileAtomically(writeCtx, p.clients.Storage.Bucket(p.config.Bucket), destObject, localPath)
			if err != nil {
				return err
			}
			if !created {
				slog.Info("Merged document was already uploaded.", "gcsObject", destObject)
			}
			return nil
		}()

		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", destObject, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", destObject, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
