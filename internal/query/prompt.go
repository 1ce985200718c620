package query

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/internal/domain"
)

// DefaultTemplateTTL is how long a fetched template is served before the
// store is consulted again.
const DefaultTemplateTTL = 5 * time.Minute

// DefaultTemplate answers from the built-in prompt when the store holds
// no template at all.
var DefaultTemplate = domain.PromptTemplate{
	Version: "builtin",
	Template: "You are a helpful assistant answering questions from a knowledge base.\n\n" +
		"Use only the context below to answer. If the context does not contain the answer, say so.\n\n" +
		"Context:\n{context}\n\nQuestion: {question}\n\nAnswer:",
}

// TemplateStore fetches the current answer-generation template.
type TemplateStore interface {
	GetLatest(ctx context.Context) (*domain.PromptTemplate, error)
}

// ValidateTemplate rejects templates missing a required placeholder.
func ValidateTemplate(t *domain.PromptTemplate) error {
	for _, placeholder := range []string{"{context}", "{question}"} {
		if !strings.Contains(t.Template, placeholder) {
			return fmt.Errorf("template %s: %w: %s", t.Version, domain.ErrMissingPlaceholder, placeholder)
		}
	}
	return nil
}

// TemplateCache serves the latest valid template, refreshed from the
// store at most once per TTL. A stale or invalid fetch never evicts the
// last good template.
type TemplateCache struct {
	store TemplateStore
	ttl   time.Duration

	mu        sync.Mutex
	current   domain.PromptTemplate
	fetchedAt time.Time
}

// NewTemplateCache creates a cache over the given store. A non-positive
// ttl falls back to DefaultTemplateTTL.
func NewTemplateCache(store TemplateStore, ttl time.Duration) *TemplateCache {
	if ttl <= 0 {
		ttl = DefaultTemplateTTL
	}
	return &TemplateCache{
		store:   store,
		ttl:     ttl,
		current: DefaultTemplate,
	}
}

// Get returns the cached template, refreshing it when the TTL has
// elapsed. A failed refresh never fails the caller: the last good
// template is served and the failure is logged, so one bad store entry
// cannot take down the query path.
func (c *TemplateCache) Get(ctx context.Context) (domain.PromptTemplate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.fetchedAt) < c.ttl && !c.fetchedAt.IsZero() {
		return c.current, nil
	}

	current, err := c.refreshLocked(ctx)
	if err != nil {
		log.Printf("template refresh failed, serving version %s: %v", current.Version, err)
	}
	return current, nil
}

// Reload discards the cached template and fetches a fresh one.
func (c *TemplateCache) Reload(ctx context.Context) (domain.PromptTemplate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// refreshLocked fetches from the store, keeping the last good template
// on any failure. Every attempt stamps fetchedAt so a persistently bad
// store entry costs one fetch per TTL, not one per query.
func (c *TemplateCache) refreshLocked(ctx context.Context) (domain.PromptTemplate, error) {
	c.fetchedAt = time.Now()

	fetched, err := c.store.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			c.current = DefaultTemplate
			return c.current, nil
		}
		return c.current, err
	}

	if err := ValidateTemplate(fetched); err != nil {
		return c.current, err
	}

	c.current = *fetched
	return c.current, nil
}

// RefreshProcessor adapts the cache to the background worker, keeping
// the template warm without a request paying for the fetch.
type RefreshProcessor struct {
	cache *TemplateCache
}

func NewRefreshProcessor(cache *TemplateCache) *RefreshProcessor {
	return &RefreshProcessor{cache: cache}
}

func (p *RefreshProcessor) ProcessJobs(ctx context.Context) error {
	_, err := p.cache.Reload(ctx)
	return err
}
