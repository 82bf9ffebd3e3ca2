package models

const NotAvailable = "N/A"

type SearchMode string

const (
	SearchKeyword SearchMode = "keyword"
	SearchVector  SearchMode = "vector"
)

// ContextSegment is a retrieved chunk handed to the generator and returned
// to the caller.
type ContextSegment struct {
	ChunkID        int      `json:"chunk_id"`
	Content        string   `json:"content"`
	Score          *float64 `json:"score,omitempty"`
	MeetingDate    string   `json:"meeting_date"`
	MeetingType    string   `json:"meeting_type"`
	FileType       string   `json:"file_type"`
	SourceDocument string   `json:"source_document"`
}

type PromptRequest struct {
	UserPromptText string `json:"user_prompt_text" binding:"required,min=1,max=1000"`
}

type PromptResponse struct {
	GeneratedResponse string           `json:"generated_response"`
	ContextSegments   []ContextSegment `json:"context_segments"`
	Keywords          []string         `json:"keywords"`
	ErrorCode         int              `json:"error_code"`
}
