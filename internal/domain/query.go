package domain

import "encoding/json"

// Default query parameters, applied when the caller omits them.
const (
	DefaultMaxResults  = 5
	DefaultTemperature = 0.7
)

// Query is one natural-language question, scoped to a single request.
type Query struct {
	Question    string
	MaxResults  int
	Temperature float32
}

// ApplyDefaults fills unset fields with default values.
func (q *Query) ApplyDefaults() {
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxResults
	}
	if q.Temperature <= 0 {
		q.Temperature = DefaultTemperature
	}
}

// ValidateQuery validates an incoming query.
func ValidateQuery(q *Query) error {
	if q == nil || q.Question == "" {
		return ErrEmptyQuestion
	}
	if q.MaxResults < 0 {
		return ErrInvalidMaxResults
	}
	if q.Temperature < 0 || q.Temperature > 2 {
		return ErrInvalidTemperature
	}
	return nil
}

// Neighbor is one vector-search hit: an identifier and its distance
// from the query vector.
type Neighbor struct {
	ID       string
	Distance float32
}

// RetrievedChunk is a hydrated neighbor, held only for the duration of
// one query. RelevanceScore is 1 - distance; higher is more relevant.
type RetrievedChunk struct {
	ChunkID        string
	Text           string
	SourceURI      string
	RelevanceScore float32
}

// Source is one provenance entry in the terminal answer event.
type Source struct {
	URI   string  `json:"uri"`
	Score float32 `json:"score"`
}

// AnswerEvent is one element of an answer stream: a sequence of text
// fragments followed by exactly one terminal event carrying sources and
// the prompt version, or an error event in place of the terminal one.
type AnswerEvent struct {
	Fragment      string   `json:"chunk,omitempty"`
	Done          bool     `json:"done,omitempty"`
	Sources       []Source `json:"sources,omitempty"`
	PromptVersion string   `json:"prompt_version,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// MarshalJSON emits only the fields for the event's kind. The terminal
// event always carries a sources array, empty when no chunk grounded
// the answer.
func (e AnswerEvent) MarshalJSON() ([]byte, error) {
	if e.Done {
		sources := e.Sources
		if sources == nil {
			sources = []Source{}
		}
		return json.Marshal(struct {
			Done          bool     `json:"done"`
			Sources       []Source `json:"sources"`
			PromptVersion string   `json:"prompt_version"`
		}{e.Done, sources, e.PromptVersion})
	}
	if e.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Error})
	}
	return json.Marshal(struct {
		Fragment string `json:"chunk"`
	}{e.Fragment})
}

// PromptTemplate is a versioned answer-generation template. The template
// must contain both the {context} and {question} placeholders.
type PromptTemplate struct {
	Version  string
	Template string
}
