package etl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"

	"newsetl/internal/config"
	"newsetl/internal/embed"
	"newsetl/internal/logging"
	"newsetl/internal/pinecone"
	"newsetl/internal/vectorize"
)

// NewsETL is the invocation boundary: it turns an event into a Config,
// builds the clients the mode needs and runs the dispatcher.
type NewsETL struct {
	store   ObjectStore
	bedrock embed.BedrockClient
	runs    RunsClient
	sns     Publisher

	newEmbedder func(cfg config.Config, bedrock embed.BedrockClient, logger *slog.Logger) (embeddings.Embedder, error)
	newIndex    func(cfg config.Config) (vectorize.Index, error)
	newLogger   func(level string) *slog.Logger
	now         func() time.Time
}

func NewNewsETL(cfg aws.Config) *NewsETL {
	return &NewsETL{
		store:       s3.NewFromConfig(cfg),
		bedrock:     bedrockruntime.NewFromConfig(cfg),
		runs:        dynamodb.NewFromConfig(cfg),
		sns:         sns.NewFromConfig(cfg),
		newEmbedder: newEmbedder,
		newIndex:    newIndex,
		newLogger:   logging.New,
		now:         time.Now,
	}
}

func newEmbedder(cfg config.Config, bedrock embed.BedrockClient, logger *slog.Logger) (embeddings.Embedder, error) {
	if cfg.EmbeddingProvider == config.ProviderBedrock {
		return embed.NewTitan(bedrock, cfg.EmbeddingModel, cfg.EmbeddingRPS, logger), nil
	}
	return embed.NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
}

func newIndex(cfg config.Config) (vectorize.Index, error) {
	var opts []pinecone.Option
	if cfg.PineconeHost != "" {
		opts = append(opts, pinecone.WithHost(cfg.PineconeHost))
	}
	return pinecone.New(cfg.PineconeAPIKey, cfg.PineconeIndex, opts...)
}

// Handle runs one partition.
//
// Behavior:
//   - Config errors are returned before any AWS or HTTP call.
//   - Otherwise the run is dispatched; when ETL_RUNS_TABLE / NOTIFY_TOPIC_ARN
//     are set the outcome is recorded / published, success or not.
//   - Any run error is returned so the invocation fails.
func (h *NewsETL) Handle(ctx context.Context, ev config.Event) (map[string]any, error) {
	started := h.now()
	runID := uuid.NewString()

	cfg, err := config.Load(config.EventLookup(ev), started.UTC())
	logger := h.newLogger(cfg.LogLevel).With("run_id", runID, "mode", string(cfg.Mode), "date", cfg.Date)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		return nil, err
	}

	deps := Deps{Store: h.store, Logger: logger}
	if cfg.Mode == config.ModePinecone {
		if deps.Embedder, err = h.newEmbedder(cfg, h.bedrock, logger); err != nil {
			err = &config.ConfigError{Key: config.KeyEmbeddingProvider, Reason: err.Error()}
			logger.Error("embedder setup failed", "err", err)
			return nil, err
		}
		if deps.Index, err = h.newIndex(cfg); err != nil {
			err = &config.ConfigError{Key: config.KeyPineconeAPIKey, Reason: err.Error()}
			logger.Error("index setup failed", "err", err)
			return nil, err
		}
		logger.Debug("pinecone index ready", "index", cfg.PineconeIndex, "env", cfg.PineconeEnv)
		if c, ok := deps.Index.(io.Closer); ok {
			defer func() {
				if err := c.Close(); err != nil {
					logger.Warn("close index failed", "err", err)
				}
			}()
		}
	}

	sum, runErr := Run(ctx, cfg, deps)
	h.finish(ctx, cfg, newRunRecord(runID, string(cfg.Mode), cfg.Date, started, h.now(), sum, runErr), logger)

	if runErr != nil {
		logger.Error("etl run failed", "err", runErr)
		return nil, runErr
	}

	out := sum.Fields()
	out["run_id"] = runID
	return out, nil
}

// finish writes the run ledger and notification. Their failures are logged
// only, the run outcome stands.
func (h *NewsETL) finish(ctx context.Context, cfg config.Config, rec RunRecord, logger *slog.Logger) {
	if cfg.RunsTable != "" {
		if err := RecordRun(ctx, h.runs, cfg.RunsTable, rec); err != nil {
			logger.Warn("record run failed", "err", err)
		}
	}
	if cfg.NotifyTopicARN != "" {
		if err := NotifyRun(ctx, h.sns, cfg.NotifyTopicARN, rec); err != nil {
			logger.Warn("notify run failed", "err", err)
		}
	}
}

// IsConfigError reports whether err is a configuration problem rather than
// a data or sink failure.
func IsConfigError(err error) bool {
	var ce *config.ConfigError
	return errors.As(err, &ce)
}
