package domain

import "time"

type QueryType string

const (
	QueryTypeHybrid QueryType = "hybrid"
	QueryTypeImage  QueryType = "image"
	QueryTypeText   QueryType = "text"
	QueryTypeTable  QueryType = "table"
	QueryTypeSmart  QueryType = "smart"
)

func ParseQueryType(s string) (QueryType, bool) {
	switch QueryType(s) {
	case QueryTypeHybrid, QueryTypeImage, QueryTypeText, QueryTypeTable, QueryTypeSmart:
		return QueryType(s), true
	case "":
		return QueryTypeHybrid, true
	default:
		return "", false
	}
}

// Intent labels produced by the intent analyzer.
const (
	IntentHybrid       = "hybrid"
	IntentImageFocused = "image_focused"
	IntentTextFocused  = "text_focused"
	IntentTableFocused = "table_focused"
)

type IntentResult struct {
	PrimaryIntent string   `json:"primary_intent"`
	Confidence    float64  `json:"confidence"`
	Keywords      []string `json:"keywords,omitempty"`
}

// ProcessingDetail records one degraded or skipped sub-stage of a query.
type ProcessingDetail struct {
	Stage   string `json:"stage"`
	Engine  string `json:"engine,omitempty"`
	Message string `json:"message"`
}

type QueryMetadata struct {
	Intent            string             `json:"intent,omitempty"`
	ModalityCounts    map[string]int     `json:"modality_counts,omitempty"`
	RelevanceByType   map[string]float64 `json:"relevance_by_type,omitempty"`
	MatchTypes        map[string]string  `json:"match_types,omitempty"`
	DroppedCandidates int                `json:"dropped_candidates,omitempty"`
	FilteredResults   int                `json:"filtered_results,omitempty"`
	Degraded          bool               `json:"degraded,omitempty"`
	ProcessingDetails []ProcessingDetail `json:"processing_details,omitempty"`
}

// QueryResult is the JSON-serializable response of one process_query call.
type QueryResult struct {
	Success        bool          `json:"success"`
	Query          string        `json:"query"`
	QueryType      QueryType     `json:"query_type"`
	Results        []FusedResult `json:"results"`
	TotalCount     int           `json:"total_count"`
	ProcessingTime float64       `json:"processing_time"`
	Answer         string        `json:"answer,omitempty"`
	Metadata       QueryMetadata `json:"metadata"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

// EngineStatus describes one modality engine for the status endpoint.
type EngineStatus struct {
	Enabled       bool      `json:"enabled"`
	Ready         bool      `json:"ready"`
	DocumentCount int       `json:"document_count"`
	LastRefresh   time.Time `json:"last_refresh,omitzero"`
}

// QueryLogRecord is one audit-log row for a processed query.
type QueryLogRecord struct {
	ID             string         `json:"id"`
	Query          string         `json:"query"`
	QueryType      string         `json:"query_type"`
	Intent         string         `json:"intent"`
	ModalityCounts map[string]int `json:"modality_counts"`
	ResultCount    int            `json:"result_count"`
	Degraded       bool           `json:"degraded"`
	DurationMS     float64        `json:"duration_ms"`
	CreatedAt      time.Time      `json:"created_at"`
}
