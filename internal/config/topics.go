package config

const (
	// TopicJobStatus is the NSQ topic for ingestion job lifecycle events.
	TopicJobStatus = "ingest.job.status"

	// TopicPaperReindex is the NSQ topic for paper re-embedding tasks.
	TopicPaperReindex = "paper.reindex"
)
