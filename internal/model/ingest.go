package model

// IngestEnvelope carries one raw line with source metadata.
// It is the transport contract between ingestion sources and processing.
type IngestEnvelope struct {
	Source string
	// Stream identifies one ordered stream within a source, such as a TCP
	// connection or a Kafka partition. Multi-line documents never span streams.
	Stream string
	Line   string
	// EOF marks the end of Stream; Line is empty.
	EOF bool
}
