package query

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/quarrylabs/quarry/internal/domain"
)

// NoAnswerText is streamed when vector search finds nothing to ground
// an answer on.
const NoAnswerText = "I couldn't find any relevant information in the knowledge base for your question."

// QuestionEmbedder turns the question into a query vector.
type QuestionEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher returns the nearest chunk IDs for a query vector,
// closest first.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]domain.Neighbor, error)
}

// ChunkStore hydrates neighbor IDs back into chunk text and provenance.
type ChunkStore interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.Chunk, error)
}

// TemplateProvider supplies the current prompt template.
type TemplateProvider interface {
	Get(ctx context.Context) (domain.PromptTemplate, error)
}

// Generator streams an answer for an assembled prompt, one fragment per
// callback in generation order.
type Generator interface {
	Stream(ctx context.Context, prompt string, temperature float32, fn func(fragment string) error) error
}

// EmitFunc receives answer events in order. A non-nil return aborts the
// stream; the client is gone.
type EmitFunc func(domain.AnswerEvent) error

// Orchestrator answers one question per call: embed, search, hydrate,
// assemble, generate, and close the stream with provenance.
type Orchestrator struct {
	embedder  QuestionEmbedder
	searcher  VectorSearcher
	chunks    ChunkStore
	templates TemplateProvider
	generator Generator
}

func NewOrchestrator(embedder QuestionEmbedder, searcher VectorSearcher, chunks ChunkStore, templates TemplateProvider, generator Generator) *Orchestrator {
	return &Orchestrator{
		embedder:  embedder,
		searcher:  searcher,
		chunks:    chunks,
		templates: templates,
		generator: generator,
	}
}

// Answer runs the full pipeline for one query. Errors before the first
// emitted event are returned to the caller; once streaming has begun a
// failure is delivered as a terminal error event instead, since the
// response is already underway.
func (o *Orchestrator) Answer(ctx context.Context, q domain.Query, emit EmitFunc) error {
	if err := domain.ValidateQuery(&q); err != nil {
		return err
	}
	q.ApplyDefaults()

	template, err := o.templates.Get(ctx)
	if err != nil {
		return err
	}

	vector, err := o.embedder.GenerateEmbedding(ctx, q.Question)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeTransientOracle, "failed to embed question", err)
	}

	neighbors, err := o.searcher.Search(ctx, vector, q.MaxResults)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "vector search failed", err)
	}

	if len(neighbors) == 0 {
		if err := emit(domain.AnswerEvent{Fragment: NoAnswerText}); err != nil {
			return err
		}
		return emit(domain.AnswerEvent{
			Done:          true,
			Sources:       []domain.Source{},
			PromptVersion: template.Version,
		})
	}

	retrieved, err := o.hydrate(ctx, neighbors)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to hydrate chunks", err)
	}

	prompt := assemblePrompt(template.Template, q.Question, retrieved)

	var answer strings.Builder
	var emitErr error
	streaming := false
	streamErr := o.generator.Stream(ctx, prompt, q.Temperature, func(fragment string) error {
		streaming = true
		answer.WriteString(fragment)
		if err := emit(domain.AnswerEvent{Fragment: fragment}); err != nil {
			emitErr = err
			return err
		}
		return nil
	})
	if emitErr != nil {
		// the client is gone, nothing left to deliver the error to
		return emitErr
	}
	if streamErr != nil {
		if !streaming {
			return domain.NewDomainErrorWithCause(domain.ErrCodeTransientOracle, "generation failed", streamErr)
		}
		log.Printf("generation stream aborted: %v", streamErr)
		return emit(domain.AnswerEvent{Error: "generation failed"})
	}

	logQueryCost(template.Version, prompt, answer.String(), len(retrieved))

	return emit(domain.AnswerEvent{
		Done:          true,
		Sources:       sourcesOf(retrieved),
		PromptVersion: template.Version,
	})
}

// hydrate resolves neighbors into chunks, preserving nearest-first
// order. A neighbor with no stored metadata is skipped, not fatal.
func (o *Orchestrator) hydrate(ctx context.Context, neighbors []domain.Neighbor) ([]domain.RetrievedChunk, error) {
	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}

	chunks, err := o.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	retrieved := make([]domain.RetrievedChunk, 0, len(neighbors))
	for _, n := range neighbors {
		c, ok := chunks[n.ID]
		if !ok {
			log.Printf("neighbor %s has no stored metadata, skipping", n.ID)
			continue
		}
		retrieved = append(retrieved, domain.RetrievedChunk{
			ChunkID:        c.ChunkID,
			Text:           c.Text,
			SourceURI:      c.SourceURI,
			RelevanceScore: 1 - n.Distance,
		})
	}

	return retrieved, nil
}

func assemblePrompt(template, question string, retrieved []domain.RetrievedChunk) string {
	blocks := make([]string, len(retrieved))
	for i, c := range retrieved {
		blocks[i] = "[Source: " + c.SourceURI + "]\n" + c.Text
	}
	contextBlock := strings.Join(blocks, "\n\n")

	prompt := strings.ReplaceAll(template, "{context}", contextBlock)
	return strings.ReplaceAll(prompt, "{question}", question)
}

// sourcesOf deduplicates provenance by URI, keeping the best score.
func sourcesOf(retrieved []domain.RetrievedChunk) []domain.Source {
	seen := make(map[string]int)
	sources := make([]domain.Source, 0, len(retrieved))
	for _, c := range retrieved {
		if i, ok := seen[c.SourceURI]; ok {
			if c.RelevanceScore > sources[i].Score {
				sources[i].Score = c.RelevanceScore
			}
			continue
		}
		seen[c.SourceURI] = len(sources)
		sources = append(sources, domain.Source{URI: c.SourceURI, Score: c.RelevanceScore})
	}
	return sources
}

// logQueryCost emits a rough token and cost estimate for one answered
// query. Four characters per token, 7 micro-USD per token.
func logQueryCost(promptVersion, prompt, answer string, chunks int) {
	tokens := (len(prompt) + len(answer)) / 4
	payload, err := json.Marshal(map[string]any{
		"event":            "query_answered",
		"prompt_version":   promptVersion,
		"retrieved_chunks": chunks,
		"estimated_tokens": tokens,
		"estimated_cost_micro_usd": tokens * 7,
	})
	if err != nil {
		return
	}
	log.Println(string(payload))
}
