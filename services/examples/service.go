package examples

import (
	"context"
	"fmt"
	"strings"

	"hdbinsights/models"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Metadata keys stored alongside each example vector.
const (
	MetadataQuestion = "question"
	MetadataSQL      = "sql"
)

// VectorIndex is the slice of a Pinecone index connection used for lookups.
type VectorIndex interface {
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
}

type Service struct {
	index    VectorIndex
	embedder embeddings.Embedder
	logger   zerolog.Logger
}

// NewEmbedder builds the OpenAI embedder shared by retrieval and indexing.
func NewEmbedder(openaiAPIKey string) (embeddings.Embedder, error) {
	llm, err := openai.New(
		openai.WithModel("gpt-4o-mini"),
		openai.WithToken(openaiAPIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// Connect resolves the index host and opens a namespaced connection.
func Connect(ctx context.Context, client *pinecone.Client, indexName, namespace string) (*pinecone.IndexConnection, error) {
	idxDesc, err := client.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index: %w", err)
	}

	idxConn, err := client.Index(pinecone.NewIndexConnParams{
		Host:      idxDesc.Host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return idxConn, nil
}

func NewService(ctx context.Context, apiKey, openaiAPIKey, indexName, namespace string, logger zerolog.Logger) (*Service, error) {
	logger.Info().Str("index", indexName).Str("namespace", namespace).Msg("Initializing example retrieval")

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	idxConn, err := Connect(ctx, pc, indexName, namespace)
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(openaiAPIKey)
	if err != nil {
		return nil, err
	}

	return NewServiceWithIndex(idxConn, embedder, logger), nil
}

func NewServiceWithIndex(index VectorIndex, embedder embeddings.Embedder, logger zerolog.Logger) *Service {
	return &Service{index: index, embedder: embedder, logger: logger}
}

// SimilarExamples returns up to k stored examples closest to question,
// best match first. Matches missing a question or SQL are skipped, as are
// repeats of the same SQL.
func (s *Service) SimilarExamples(ctx context.Context, question string, k int) ([]models.SQLExample, error) {
	question = strings.TrimSpace(question)
	if k <= 0 || question == "" {
		return nil, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	result, err := s.index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(k),
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}

	var found []models.SQLExample
	for _, match := range result.Matches {
		if match == nil || match.Vector == nil || match.Vector.Metadata == nil {
			continue
		}
		metadata := match.Vector.Metadata.AsMap()

		q, _ := metadata[MetadataQuestion].(string)
		sqlText, _ := metadata[MetadataSQL].(string)
		if strings.TrimSpace(q) == "" || strings.TrimSpace(sqlText) == "" {
			continue
		}

		found = append(found, models.SQLExample{
			ID:       match.Vector.Id,
			Question: q,
			SQL:      sqlText,
			Score:    match.Score,
		})
	}

	found = lo.UniqBy(found, func(e models.SQLExample) string {
		return strings.Join(strings.Fields(strings.ToLower(e.SQL)), " ")
	})
	if len(found) > k {
		found = found[:k]
	}

	s.logger.Debug().Int("requested", k).Int("found", len(found)).Msg("Retrieved SQL examples")
	return found, nil
}
