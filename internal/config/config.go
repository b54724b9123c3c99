// Package config holds the run configuration. It is built once at the
// invocation boundary and passed down explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeCSV      Mode = "csv"
	ModePinecone Mode = "pinecone"
)

// Recognized keys. Each is read from the invocation event first, then from
// the environment.
const (
	KeyETL               = "ETL"
	KeyFromBucket        = "FROM_S3_BUCKET"
	KeyToBucket          = "TO_S3_BUCKET"
	KeyPineconeAPIKey    = "PINECONE_API_KEY"
	KeyPineconeEnv       = "PINECONE_ENV"
	KeyPineconeIndex     = "PINECONE_INDEX_NAME"
	KeyPineconeHost      = "PINECONE_HOST"
	KeyOpenAIAPIKey      = "OPEN_API_KEY"
	KeyEmbeddingProvider = "EMBEDDING_PROVIDER"
	KeyEmbeddingModel    = "EMBEDDING_MODEL"
	KeyEmbeddingRPS      = "EMBEDDING_RPS"
	KeyDate              = "DATE"
	KeyLogLevel          = "LOG_LEVEL"
	KeyTabularFormat     = "TABULAR_FORMAT"
	KeyChunkSize         = "CHUNK_SIZE"
	KeyChunkOverlap      = "CHUNK_OVERLAP"
	KeyBatchSize         = "UPSERT_BATCH_SIZE"
	KeyRunsTable         = "ETL_RUNS_TABLE"
	KeyNotifyTopic       = "NOTIFY_TOPIC_ARN"
)

const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

const DateLayout = "2006-01-02"

// ConfigError reports an invalid mode or a missing required key. It is
// raised before any I/O.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

type Config struct {
	Mode       Mode
	FromBucket string
	ToBucket   string
	// Date is the partition prefix, YYYY-MM-DD.
	Date          string
	TabularFormat string

	PineconeAPIKey string
	PineconeEnv    string
	PineconeIndex  string
	PineconeHost   string

	EmbeddingProvider string
	EmbeddingModel    string
	OpenAIAPIKey      string
	// EmbeddingRPS caps Bedrock calls per second; 0 is unlimited.
	EmbeddingRPS float64

	ChunkSize    int
	ChunkOverlap int
	BatchSize    int

	LogLevel       string
	RunsTable      string
	NotifyTopicARN string
}

// Event is the raw invocation payload.
type Event map[string]any

// Lookup returns the value for key from src, falling back to getenv.
type Lookup func(key string) string

// EventLookup reads key from ev, then from the process environment.
func EventLookup(ev Event) Lookup {
	return func(key string) string {
		if v, ok := ev[key]; ok && v != nil {
			if s := strings.TrimSpace(eventString(v)); s != "" {
				return s
			}
		}
		return strings.TrimSpace(os.Getenv(key))
	}
}

// eventString renders a decoded event value. JSON numbers arrive as float64
// and are written without an exponent.
func eventString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Load collects every recognized key. It only parses; Validate decides what
// is required. now picks the default partition (the previous day).
func Load(get Lookup, now time.Time) (Config, error) {
	cfg := Config{
		Mode:              Mode(get(KeyETL)),
		FromBucket:        get(KeyFromBucket),
		ToBucket:          get(KeyToBucket),
		Date:              get(KeyDate),
		TabularFormat:     strings.ToLower(get(KeyTabularFormat)),
		PineconeAPIKey:    get(KeyPineconeAPIKey),
		PineconeEnv:       get(KeyPineconeEnv),
		PineconeIndex:     get(KeyPineconeIndex),
		PineconeHost:      get(KeyPineconeHost),
		EmbeddingProvider: strings.ToLower(get(KeyEmbeddingProvider)),
		EmbeddingModel:    get(KeyEmbeddingModel),
		OpenAIAPIKey:      get(KeyOpenAIAPIKey),
		LogLevel:          get(KeyLogLevel),
		RunsTable:         get(KeyRunsTable),
		NotifyTopicARN:    get(KeyNotifyTopic),
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = get("OPENAI_API_KEY")
	}
	if cfg.Date == "" {
		cfg.Date = now.AddDate(0, 0, -1).Format(DateLayout)
	}
	if cfg.TabularFormat == "" {
		cfg.TabularFormat = "csv"
	}
	if cfg.EmbeddingProvider == "" {
		cfg.EmbeddingProvider = ProviderOpenAI
	}

	var err error
	if cfg.ChunkSize, err = intKey(get, KeyChunkSize, 1000); err != nil {
		return cfg, err
	}
	if cfg.ChunkOverlap, err = intKey(get, KeyChunkOverlap, 50); err != nil {
		return cfg, err
	}
	if cfg.BatchSize, err = intKey(get, KeyBatchSize, 50); err != nil {
		return cfg, err
	}
	if v := get(KeyEmbeddingRPS); v != "" {
		if cfg.EmbeddingRPS, err = strconv.ParseFloat(v, 64); err != nil || cfg.EmbeddingRPS < 0 {
			return cfg, &ConfigError{Key: KeyEmbeddingRPS, Reason: fmt.Sprintf("not a non-negative number: %q", v)}
		}
	}
	return cfg, nil
}

func intKey(get Lookup, key string, def int) (int, error) {
	v := get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("not an integer: %q", v)}
	}
	return n, nil
}

// Validate checks the mode first, then the keys that mode requires.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeCSV, ModePinecone:
	case "":
		return &ConfigError{Key: KeyETL, Reason: "missing"}
	default:
		return &ConfigError{Key: KeyETL, Reason: fmt.Sprintf("invalid ETL type: %s", c.Mode)}
	}

	if c.FromBucket == "" {
		return missing(KeyFromBucket)
	}
	if _, err := time.Parse(DateLayout, c.Date); err != nil {
		return &ConfigError{Key: KeyDate, Reason: fmt.Sprintf("want YYYY-MM-DD, got %q", c.Date)}
	}

	if c.Mode == ModeCSV {
		if c.ToBucket == "" {
			return missing(KeyToBucket)
		}
		switch c.TabularFormat {
		case "csv", "parquet", "xlsx":
		default:
			return &ConfigError{Key: KeyTabularFormat, Reason: fmt.Sprintf("unknown format %q", c.TabularFormat)}
		}
		return nil
	}

	for _, kv := range []struct{ key, val string }{
		{KeyPineconeAPIKey, c.PineconeAPIKey},
		{KeyPineconeEnv, c.PineconeEnv},
		{KeyPineconeIndex, c.PineconeIndex},
	} {
		if kv.val == "" {
			return missing(kv.key)
		}
	}
	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return missing(KeyOpenAIAPIKey)
		}
	case ProviderBedrock:
	default:
		return &ConfigError{Key: KeyEmbeddingProvider, Reason: fmt.Sprintf("unknown provider %q", c.EmbeddingProvider)}
	}

	if c.ChunkSize <= 0 {
		return &ConfigError{Key: KeyChunkSize, Reason: "must be greater than 0"}
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return &ConfigError{Key: KeyChunkOverlap, Reason: fmt.Sprintf("must be in [0, %d)", c.ChunkSize)}
	}
	if c.BatchSize <= 0 {
		return &ConfigError{Key: KeyBatchSize, Reason: "must be greater than 0"}
	}
	return nil
}

func missing(key string) error {
	return &ConfigError{Key: key, Reason: "missing"}
}
