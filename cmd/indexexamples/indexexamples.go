package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"hdbinsights/config"
	"hdbinsights/logging"
	"hdbinsights/models"
	"hdbinsights/services/examples"

	"github.com/google/uuid"
	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/embeddings"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	embeddingDimension = int32(1536)
	upsertBatchSize    = 10
)

func main() {
	file := flag.String("file", "data/sql_examples.json", "JSON file of {question, sql} examples")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info().Str("file", *file).Msg("Starting example indexing")

	if cfg.PineconeAPIKey == "" {
		logger.Fatal().Msg("PINECONE_API_KEY environment variable is required")
	}
	if cfg.OpenAIAPIKey == "" {
		logger.Fatal().Msg("OPENAI_API_KEY environment variable is required")
	}

	items, err := loadExamples(*file)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load examples")
	}
	logger.Info().Int("count", len(items)).Msg("Loaded examples")

	ctx := context.Background()

	embedder, err := examples.NewEmbedder(cfg.OpenAIAPIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create embedder")
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.PineconeAPIKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Pinecone client")
	}

	if err := ensurePineconeIndex(ctx, pc, cfg.PineconeIndexName, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ensure Pinecone index")
	}

	idxConn, err := examples.Connect(ctx, pc, cfg.PineconeIndexName, cfg.PineconeNamespace)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to index")
	}

	vectors, err := buildVectors(ctx, items, embedder)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build vectors")
	}

	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(vectors))
		count, err := idxConn.UpsertVectors(ctx, vectors[start:end])
		if err != nil {
			logger.Fatal().Err(err).Int("batch", start/upsertBatchSize+1).Msg("Failed to upsert vector batch")
		}
		logger.Info().Uint32("upserted", count).Int("batch", start/upsertBatchSize+1).Msg("Upserted vectors")
	}

	logger.Info().Int("count", len(vectors)).Msg("Example indexing completed successfully")
}

// loadExamples reads the examples file, drops incomplete entries and gives
// every remaining example a stable id so re-indexing overwrites in place.
func loadExamples(path string) ([]models.SQLExample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var items []models.SQLExample
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	kept := make([]models.SQLExample, 0, len(items))
	for _, item := range items {
		item.Question = strings.TrimSpace(item.Question)
		item.SQL = strings.TrimSpace(item.SQL)
		if item.Question == "" || item.SQL == "" {
			continue
		}
		if item.ID == "" {
			item.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(item.Question+"\n"+item.SQL)).String()
		}
		kept = append(kept, item)
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("no usable examples in %s", path)
	}
	return kept, nil
}

func buildVectors(ctx context.Context, items []models.SQLExample, embedder embeddings.Embedder) ([]*pinecone.Vector, error) {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Question
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(items) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(items), len(vectors))
	}

	out := make([]*pinecone.Vector, 0, len(items))
	for i, item := range items {
		metadata, err := structpb.NewStruct(map[string]any{
			examples.MetadataQuestion: item.Question,
			examples.MetadataSQL:      item.SQL,
			"indexed_at":              time.Now().Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata struct for example %s: %w", item.ID, err)
		}

		out = append(out, &pinecone.Vector{
			Id:       item.ID,
			Values:   &vectors[i],
			Metadata: metadata,
		})
	}

	return out, nil
}

func ensurePineconeIndex(ctx context.Context, pc *pinecone.Client, indexName string, logger zerolog.Logger) error {
	indexes, err := pc.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	for _, idx := range indexes {
		if idx.Name == indexName {
			logger.Info().Str("index", indexName).Msg("Index already exists")
			return nil
		}
	}

	logger.Info().Str("index", indexName).Msg("Creating Pinecone index")
	dimension := embeddingDimension
	deletionProtection := pinecone.DeletionProtectionDisabled
	metric := pinecone.Cosine

	_, err = pc.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:               indexName,
		Dimension:          &dimension,
		Metric:             &metric,
		Cloud:              pinecone.Aws,
		Region:             "us-east-1",
		DeletionProtection: &deletionProtection,
		Tags:               &pinecone.IndexTags{"project": "hdbinsights"},
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	for {
		idx, err := pc.DescribeIndex(ctx, indexName)
		if err != nil {
			return fmt.Errorf("failed to describe index: %w", err)
		}
		if idx.Status.Ready {
			logger.Info().Str("index", indexName).Msg("Index is ready")
			return nil
		}
		logger.Info().Str("index", indexName).Msg("Waiting for index to be ready")
		time.Sleep(10 * time.Second)
	}
}
