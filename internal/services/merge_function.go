package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/docmerge/internal/config"
	"github.com/Lllllllleong/docmerge/internal/gcp"
	"github.com/Lllllllleong/docmerge/internal/models"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
)

// TriggerObjectName is the object whose upload asks for the documents next
// to it to be merged.
const TriggerObjectName = "_MERGE"

// MergeFunction merges a folder of uploaded documents when a trigger object
// lands in the input bucket, then publishes the result.
type MergeFunction struct {
	storageClient *storage.Client
	publisher     *Publisher
	merger        *Merger
	cfg           *config.Config
}

// NewMergeFunction loads the configuration (DOCMERGE_CONFIG or the
// environment) and creates the cloud clients.
func NewMergeFunction(ctx context.Context) (*MergeFunction, error) {
	cfg, err := config.Load(config.GetEnv("DOCMERGE_CONFIG", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	publisher, err := NewPublisher(ctx, cfg.Publish)
	if err != nil {
		return nil, err
	}
	f := &MergeFunction{
		storageClient: publisher.clients.Storage,
		publisher:     publisher,
		merger:        NewMerger(cfg),
		cfg:           cfg,
	}
	slog.Info("Merge function initialized.", "outputBucket", cfg.Publish.Bucket, "ocr", cfg.OCR.Enabled)
	return f, nil
}

// Process handles one object-finalized event.
func (f *MergeFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if path.Base(e.Name) != TriggerObjectName {
		logCtx.Debug("Ignoring object that is not a merge trigger.")
		return nil
	}
	if f.cfg.Publish.InputBucket != "" && e.Bucket != f.cfg.Publish.InputBucket {
		logCtx.Warn("Ignoring trigger from an unexpected bucket.", "expectedBucket", f.cfg.Publish.InputBucket)
		return nil
	}
	prefix := triggerPrefix(e.Name)
	source := fmt.Sprintf("gs://%s/%s", e.Bucket, prefix)
	logCtx = logCtx.With("source", source)
	logCtx.Info("Processing merge trigger.")

	tempDir, err := os.MkdirTemp("", "merge-function-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	inputDir := filepath.Join(tempDir, "input")
	outputDir := filepath.Join(tempDir, "output")
	for _, dir := range []string{inputDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	objects, err := f.listDocuments(ctx, e.Bucket, prefix)
	if err != nil {
		logCtx.Error("Failed to list source documents", "error", err)
		return err
	}
	if len(objects) == 0 {
		err := fmt.Errorf("no supported documents found under %s", source)
		logCtx.Warn("Nothing to merge.")
		return f.recordFailure(ctx, logCtx, source, err)
	}
	if err := f.downloadAll(ctx, e.Bucket, objects, inputDir); err != nil {
		logCtx.Error("Failed to download source documents", "error", err)
		return err
	}
	logCtx.Info("Downloaded source documents.", "count", len(objects))

	out := filepath.Join(outputDir, outputName(prefix, f.cfg.Output.DefaultName))
	result, err := f.merger.MergeDirectory(ctx, inputDir, out)
	if err != nil {
		logCtx.Error("Merge failed", "error", err)
		return f.recordFailure(ctx, logCtx, source, err)
	}

	published, err := f.publisher.Publish(ctx, result, source)
	if err != nil {
		return err
	}
	logCtx.Info("Merge published.", "gcsUri", published.OutputGCSUri, "recordId", published.RecordID, "skipped", published.Skipped)
	return nil
}

func (f *MergeFunction) recordFailure(ctx context.Context, logCtx *slog.Logger, source string, runErr error) error {
	if err := f.publisher.RecordFailure(ctx, source, runErr); err != nil {
		logCtx.Error("CRITICAL: Failed to record merge failure.", "error", err)
	}
	return runErr
}

// listDocuments returns the supported objects directly under prefix.
func (f *MergeFunction) listDocuments(ctx context.Context, bucket, prefix string) ([]string, error) {
	query := &storage.Query{Prefix: prefix, Delimiter: "/"}
	it := f.storageClient.Bucket(bucket).Objects(ctx, query)

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in gs://%s/%s: %w", bucket, prefix, err)
		}
		if attrs.Name == "" {
			continue // synthetic directory entry
		}
		if models.FormatForPath(attrs.Name) != models.FormatUnsupported {
			names = append(names, attrs.Name)
		}
	}
	return names, nil
}

func (f *MergeFunction) downloadAll(ctx context.Context, bucket string, objects []string, destDir string) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for _, object := range objects {
		eg.Go(func() error {
			dest := filepath.Join(destDir, path.Base(object))
			if err := gcp.DownloadObject(gctx, f.storageClient, bucket, object, dest); err != nil {
				return fmt.Errorf("object %s: %w", object, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (f *MergeFunction) Close() error { return f.publisher.Close() }

// triggerPrefix is the folder of the trigger object, with a trailing slash,
// or "" at the bucket root.
func triggerPrefix(object string) string {
	dir := path.Dir(object)
	if dir == "." || dir == "/" {
		return ""
	}
	return strings.TrimSuffix(dir, "/") + "/"
}

// outputName names the merged document after its folder.
func outputName(prefix, fallback string) string {
	base := path.Base(strings.TrimSuffix(prefix, "/"))
	if prefix == "" || base == "." || base == "/" {
		return fallback
	}
	return base + ".pdf"
}
