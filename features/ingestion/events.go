package ingestion

// JobStatusEvent is published on the job-status topic when a job reaches a
// terminal state.
type JobStatusEvent struct {
	JobID               string `json:"job_id"`
	Status              string `json:"status"`
	TotalDocuments      int    `json:"total_documents"`
	SuccessfulDocuments int    `json:"successful_documents"`
	FailedDocuments     int    `json:"failed_documents"`
	DuplicateDocuments  int    `json:"duplicate_documents"`
	CorrelationID       string `json:"correlation_id,omitempty"`
}
