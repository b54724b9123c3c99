package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/time/rate"
)

const DefaultTitanModel = "amazon.titan-embed-text-v1"

type BedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Titan embeds text with an Amazon Titan model on Bedrock. The model takes
// one input per call, so EmbedDocuments calls it once per text, in order.
// Calls are paced by a rate limiter and stop early once the breaker opens.
type Titan struct {
	client  BedrockClient
	modelID string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// breakerFailures consecutive failed calls open the breaker.
const breakerFailures = 5

var _ embeddings.Embedder = (*Titan)(nil)

// NewTitan returns a Titan embedder. rps <= 0 means no client-side limit.
func NewTitan(c BedrockClient, modelID string, rps float64, logger *slog.Logger) *Titan {
	if modelID == "" {
		modelID = DefaultTitanModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "titan-embedder")

	limit, burst := rate.Inf, 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "bedrock-titan",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Titan{
		client:  c,
		modelID: modelID,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		logger:  logger,
	}
}

func (t *Titan) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	t.logger.Debug("generating embeddings", "count", len(texts), "model", t.modelID)

	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		v, err := t.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *Titan) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{"inputText": text})
	if err != nil {
		return nil, err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("bedrock rate limit: %w", err)
	}

	out, err := t.breaker.Execute(func() (interface{}, error) {
		return t.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(t.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock InvokeModel: %w", err)
	}
	res := out.(*bedrockruntime.InvokeModelOutput)

	var raw struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(res.Body, &raw); err != nil {
		return nil, fmt.Errorf("bedrock response unmarshal: %w", err)
	}
	if len(raw.Embedding) == 0 {
		return nil, fmt.Errorf("bedrock returned an empty embedding")
	}
	return raw.Embedding, nil
}
