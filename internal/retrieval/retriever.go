package retrieval

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/ragrelay/server/internal/agent/model"
	logx "github.com/ragrelay/server/pkg/logger"
)

// Config holds the vector-store connection configuration.
type Config struct {
	URL        string  `envconfig:"QDRANT_URL" required:"true"`
	APIKey     string  `envconfig:"QDRANT_API_KEY"`
	Collection string  `envconfig:"QDRANT_COLLECTION" default:"knowledge_base"`
	MinScore   float32 `envconfig:"RETRIEVAL_MIN_SCORE" default:"0.3"`
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store implements model.Retriever over a Qdrant collection.
type Store struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
	minScore   float32
}

// New creates a Qdrant-backed retriever.
func New(cfg Config, embedder Embedder) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	parsed := cfg.URL
	if !strings.HasPrefix(parsed, "http://") && !strings.HasPrefix(parsed, "https://") {
		parsed = "https://" + parsed
	}
	u, err := url.Parse(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	host := u.Hostname()
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Store{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
		minScore:   cfg.MinScore,
	}, nil
}

// Search returns up to topK passage texts ranked by similarity to the
// question, dropping results below the configured score floor.
func (s *Store) Search(ctx context.Context, question string, topK int) ([]string, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	passages := make([]string, 0, len(points))
	for _, point := range points {
		if s.minScore > 0 && point.Score < s.minScore {
			continue
		}
		if point.Payload == nil {
			continue
		}
		if v, ok := point.Payload["content"]; ok {
			if text := v.GetStringValue(); text != "" {
				passages = append(passages, text)
			}
		}
	}

	logx.Debug().
		Int("returned", len(points)).
		Int("kept", len(passages)).
		Msg("Vector search complete")

	return passages, nil
}

// Close releases the underlying client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ model.Retriever = (*Store)(nil)
