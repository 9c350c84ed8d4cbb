package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// Clients bundles the Google Cloud clients used to publish merge runs.
// Executions is nil when no workflow hand-off is configured.
type Clients struct {
	Storage    *storage.Client
	Firestore  *firestore.Client
	Executions *executions.Client
}

// NewClients creates the clients for projectID.
func NewClients(ctx context.Context, projectID string, withWorkflows bool) (*Clients, error) {
	firestoreClient, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	c := &Clients{Storage: storageClient, Firestore: firestoreClient}
	if withWorkflows {
		c.Executions, err = executions.NewClient(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
	}
	return c, nil
}

// Close releases every client.
func (c *Clients) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Executions != nil {
		record(c.Executions.Close())
	}
	record(c.Storage.Close())
	record(c.Firestore.Close())
	return firstErr
}
