package models

import "time"

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single immutable entry in a conversation session.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchMode controls how the knowledge base is queried.
type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic"
	SearchModeExact    SearchMode = "exact"
	SearchModeHybrid   SearchMode = "hybrid"
)

// IsChatMode reports whether the mode can be requested from the chat endpoint.
// Hybrid is only offered through the search API.
func (m SearchMode) IsChatMode() bool {
	return m == SearchModeSemantic || m == SearchModeExact
}

// Search types reported on hybrid results.
const (
	SearchTypeSemantic = "semantic"
	SearchTypeExact    = "exact"
	SearchTypeHybrid   = "hybrid"
)

// SearchResult is a single scored hit from the vector index.
type SearchResult struct {
	ID         string         `json:"id"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata"`
	SearchType string         `json:"searchType,omitempty"`
}

// Content returns the stored chunk text, or "" when absent.
func (r SearchResult) Content() string {
	s, _ := r.Metadata["content"].(string)
	return s
}

// Filename returns the metadata filename, or "" when absent.
func (r SearchResult) Filename() string {
	s, _ := r.Metadata["filename"].(string)
	return s
}

// Retrieval is the outcome of a knowledge-base lookup. It is never nil-valued
// on failure: a failed lookup yields empty slices.
type Retrieval struct {
	Results []SearchResult `json:"results"`
	Sources []string       `json:"sources"`
}

// MessageRequest is the payload for POST /api/chat/message.
type MessageRequest struct {
	Message            string     `json:"message"`
	SessionID          string     `json:"sessionId"`
	SearchMode         SearchMode `json:"searchMode"`
	TranslationEnabled bool       `json:"translationEnabled"`
	Language           string     `json:"language,omitempty"`
}

// ChatReply is what the orchestrator hands back for one inbound message.
type ChatReply struct {
	Message         string     `json:"message"`
	Sources         []string   `json:"sources"`
	SearchMode      SearchMode `json:"searchMode"`
	TranslationUsed bool       `json:"translationUsed"`
	ConversationID  string     `json:"conversationId"`
	ErrorCode       string     `json:"errorCode,omitempty"`
}

// ChatMessageResponse wraps a ChatReply for the HTTP layer.
type ChatMessageResponse struct {
	Success  bool      `json:"success"`
	Response ChatReply `json:"response"`
}

// HistoryResponse is returned from GET /api/chat/history/{sessionId}.
type HistoryResponse struct {
	Success   bool   `json:"success"`
	History   []Turn `json:"history"`
	SessionID string `json:"sessionId"`
}

// TranslationStats describes the translation memory.
type TranslationStats struct {
	Size       int  `json:"size"`
	Configured bool `json:"isInitialized"`
}

// SearchRequest is the payload for POST /api/search/{mode}.
type SearchRequest struct {
	Query          string         `json:"query"`
	TopK           int            `json:"topK"`
	Filter         map[string]any `json:"filter,omitempty"`
	SemanticWeight *float64       `json:"semanticWeight,omitempty"`
}

// SearchResponse is returned from the search endpoints.
type SearchResponse struct {
	Success        bool           `json:"success"`
	Query          string         `json:"query"`
	Results        []SearchResult `json:"results"`
	TotalResults   int            `json:"totalResults"`
	SearchType     string         `json:"searchType,omitempty"`
	SemanticWeight float64        `json:"semanticWeight,omitempty"`
}

// HealthResponse is returned from GET /api/health.
type HealthResponse struct {
	Status            string                  `json:"status"`
	Timestamp         time.Time               `json:"timestamp"`
	Services          map[string]ServiceCheck `json:"services"`
	TotalVectors      int                     `json:"totalVectors"`
	Sessions          int                     `json:"sessions"`
	RetrievalFailures int64                   `json:"retrievalFailures"`
}

// ServiceCheck reports the state of a single dependency.
type ServiceCheck struct {
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	Message string `json:"message,omitempty"`
}

// Provider operating modes.
const (
	ModeLive = "live"
	ModeMock = "mock"
)
