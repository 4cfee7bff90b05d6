package ingestion_engine

// Ingestor accepts ingestion work and runs it in the background.
// Callers observe progress through the job row, never through the Ingestor.
type Ingestor interface {
	Submit(req RunRequest)
	Wait()
}
