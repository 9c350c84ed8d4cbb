package models

// These structs define the JSON payloads exchanged between the cloud merge
// function, its triggering bucket event and the downstream workflow.

// GCSEvent is the data of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// WorkflowArgument is passed to the downstream workflow once a merged
// document has been published.
type WorkflowArgument struct {
	RunID        string `json:"runId"`
	RecordID     string `json:"recordId"`
	OutputGCSUri string `json:"outputGcsUri"`
	PageCount    int    `json:"pageCount"`
	Incomplete   bool   `json:"incomplete"`
}

// PublishResult describes where a merged document was published.
type PublishResult struct {
	OutputGCSUri string `json:"outputGcsUri"`
	RecordID     string `json:"recordId,omitempty"`
	ExecutionID  string `json:"executionId,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"`
}
