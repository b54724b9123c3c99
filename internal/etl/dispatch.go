package etl

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/tmc/langchaingo/embeddings"

	"newsetl/internal/config"
	"newsetl/internal/news"
	"newsetl/internal/tabular"
	"newsetl/internal/vectorize"
)

// ObjectStore is the S3 surface a run needs: read the source partition and
// write the tabular export.
type ObjectStore interface {
	news.ObjectReader
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Deps are the collaborators of one run. Embedder and Index are only used in
// pinecone mode.
type Deps struct {
	Store    ObjectStore
	Embedder embeddings.Embedder
	Index    vectorize.Index
	Logger   *slog.Logger
}

// Summary describes a finished run.
type Summary struct {
	Mode     config.Mode
	Date     string
	Articles int

	// tabular
	Bucket string
	Key    string

	// embeddings
	Chunks   int
	Batches  int
	Upserted int
}

// Run validates cfg, then runs exactly one transform for cfg.Mode over the
// cfg.Date partition of cfg.FromBucket.
func Run(ctx context.Context, cfg config.Config, deps Deps) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, &config.ConfigError{Reason: "object store not configured"}
	}
	if cfg.Mode == config.ModePinecone {
		if deps.Embedder == nil {
			return nil, &config.ConfigError{Key: config.KeyEmbeddingProvider, Reason: "embedder not configured"}
		}
		if deps.Index == nil {
			return nil, &config.ConfigError{Key: config.KeyPineconeIndex, Reason: "index not configured"}
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	src := news.NewSource(deps.Store, logger)
	articles := src.Articles(ctx, cfg.FromBucket, cfg.Date)
	sum := &Summary{Mode: cfg.Mode, Date: cfg.Date}

	logger.Debug("starting etl", "from_bucket", cfg.FromBucket)
	defer logger.Debug("finished etl")

	if cfg.Mode == config.ModeCSV {
		return runTabular(ctx, cfg, deps.Store, articles, sum, logger)
	}
	return runEmbeddings(ctx, cfg, deps, articles, sum, logger)
}

func runTabular(ctx context.Context, cfg config.Config, store ObjectStore, articles news.Seq, sum *Summary, logger *slog.Logger) (*Summary, error) {
	format, err := tabular.ParseFormat(cfg.TabularFormat)
	if err != nil {
		return nil, &config.ConfigError{Key: config.KeyTabularFormat, Reason: err.Error()}
	}

	body, rows, err := tabular.Export(ctx, articles, format)
	if err != nil {
		return nil, err
	}

	key := tabular.ObjectKey(cfg.Date, format)
	_, err = store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(cfg.ToBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(format.ContentType()),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return nil, &news.SinkError{Op: "put", Target: cfg.ToBucket + "/" + key, Err: err}
	}

	logger.Info("wrote tabular export", "bucket", cfg.ToBucket, "key", key, "rows", rows, "bytes", len(body))
	sum.Articles = rows
	sum.Bucket = cfg.ToBucket
	sum.Key = key
	return sum, nil
}

func runEmbeddings(ctx context.Context, cfg config.Config, deps Deps, articles news.Seq, sum *Summary, logger *slog.Logger) (*Summary, error) {
	p, err := vectorize.New(deps.Embedder, deps.Index, vectorize.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.BatchSize,
	}, logger)
	if err != nil {
		return nil, &config.ConfigError{Reason: err.Error()}
	}

	res, err := p.Export(ctx, articles)
	if res != nil {
		sum.Articles = res.Documents
		sum.Chunks = res.Chunks
		sum.Batches = res.Batches
		sum.Upserted = res.Upserted
	}
	if err != nil {
		return sum, err
	}

	logger.Info("upserted embeddings", "namespace", vectorize.Namespace,
		"documents", res.Documents, "chunks", res.Chunks, "batches", res.Batches)
	return sum, nil
}

// Fields renders the summary as the handler response.
func (s *Summary) Fields() map[string]any {
	out := map[string]any{
		"ok":       true,
		"mode":     string(s.Mode),
		"date":     s.Date,
		"articles": s.Articles,
	}
	if s.Mode == config.ModeCSV {
		out["bucket"] = s.Bucket
		out["key"] = s.Key
		return out
	}
	out["namespace"] = vectorize.Namespace
	out["chunks"] = s.Chunks
	out["batches"] = s.Batches
	out["upserted"] = s.Upserted
	return out
}
