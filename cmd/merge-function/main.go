package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/docmerge/internal/models"
	"github.com/Lllllllleong/docmerge/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	mergeFunctionInstance *services.MergeFunction
	once                  sync.Once
	initErr               error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("MergeAndPublish", mergeAndPublish)
}

// main is required by the Go Functions Framework.
func main() {}

// mergeAndPublish is the Cloud Function entry point for object-finalized
// events on the input bucket.
func mergeAndPublish(ctx context.Context, e cloudevents.Event) error {
	// Clients are created on the first event and reused by warm instances.
	once.Do(func() {
		mergeFunctionInstance, initErr = services.NewMergeFunction(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return mergeFunctionInstance.Process(ctx, gcsEvent)
}
