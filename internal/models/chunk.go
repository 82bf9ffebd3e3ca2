package models

// Identity is the (meeting_date, meeting_type, file_type, source_document)
// tuple that scopes a single ingestion generation.
type Identity struct {
	MeetingDate    string
	MeetingType    string
	FileType       string
	SourceDocument string
}

func (i Identity) String() string {
	return i.MeetingDate + "|" + i.MeetingType + "|" + i.FileType + "|" + i.SourceDocument
}

// Chunk is one token window of a clean text, ready to be written to the index.
type Chunk struct {
	Identity
	ChunkIndex int
	Content    string
	Embedding  []float32
}

// StoredChunk is a chunk as read back from the index.
type StoredChunk struct {
	ID string
	Chunk
}

// SearchHit is a raw index result. Properties may be missing any field;
// callers normalize it into a ContextSegment.
type SearchHit struct {
	ID         string
	Properties map[string]interface{}
	Score      *float64
}

// Property names shared by the index backends.
const (
	PropContent        = "content"
	PropChunkIndex     = "chunk_index"
	PropChunkID        = "chunk_id"
	PropMeetingDate    = "meeting_date"
	PropMeetingType    = "meeting_type"
	PropFileType       = "file_type"
	PropSourceDocument = "source_document"
)

// Properties flattens a chunk into the hit property map.
func (c Chunk) Properties() map[string]interface{} {
	return map[string]interface{}{
		PropContent:        c.Content,
		PropChunkIndex:     c.ChunkIndex,
		PropMeetingDate:    c.MeetingDate,
		PropMeetingType:    c.MeetingType,
		PropFileType:       c.FileType,
		PropSourceDocument: c.SourceDocument,
	}
}
