package vectorize

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"newsetl/internal/news"
	"newsetl/internal/pinecone"
)

const (
	// Namespace is the index partition every article vector goes to.
	Namespace = "articles"

	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 50
	DefaultBatchSize    = 50
)

// Index is the vector store sink.
type Index interface {
	Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		BatchSize:    DefaultBatchSize,
	}
}

func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return errors.New("chunk size must be greater than 0")
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d)", o.ChunkSize)
	}
	if o.BatchSize <= 0 {
		return errors.New("batch size must be greater than 0")
	}
	return nil
}

// Result counts what one run produced.
type Result struct {
	Documents int
	Chunks    int
	Batches   int
	Upserted  int
}

type Pipeline struct {
	embedder  embeddings.Embedder
	index     Index
	splitter  textsplitter.TextSplitter
	batchSize int
	logger    *slog.Logger
}

func New(embedder embeddings.Embedder, index Index, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("embedder required")
	}
	if index == nil {
		return nil, errors.New("index required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		embedder:  embedder,
		index:     index,
		splitter:  NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		batchSize: opts.BatchSize,
		logger:    logger.With("component", "vectorize"),
	}, nil
}

// Export runs every stage over the full partition. The returned Result is
// filled in as far as the run got, also on error.
func (p *Pipeline) Export(ctx context.Context, articles iter.Seq2[news.Article, error]) (*Result, error) {
	res := &Result{}

	all, err := news.Collect(articles)
	if err != nil {
		return res, err
	}

	docs, err := Documents(all)
	if err != nil {
		return res, err
	}
	res.Documents = len(docs)
	p.logger.Debug("created documents", "count", len(docs))

	chunks, err := Split(p.splitter, docs)
	if err != nil {
		return res, err
	}
	res.Chunks = len(chunks)
	p.logger.Debug("split documents", "chunks", len(chunks))

	if len(chunks) == 0 {
		p.logger.Info("nothing to embed")
		return res, nil
	}

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return res, err
	}
	p.logger.Debug("created embeddings", "count", len(vectors))

	records, err := Records(chunks, vectors)
	if err != nil {
		return res, err
	}

	for batch := range slices.Chunk(records, p.batchSize) {
		if err := p.index.Upsert(ctx, Namespace, batch); err != nil {
			return res, &news.SinkError{
				Op:     "upsert",
				Target: fmt.Sprintf("%s batch %d (%s..%s)", Namespace, res.Batches, batch[0].ID, batch[len(batch)-1].ID),
				Err:    err,
			}
		}
		res.Batches++
		res.Upserted += len(batch)
		p.logger.Debug("upserted batch", "batch", res.Batches, "vectors", len(batch))
	}

	return res, nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []schema.Document) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.PageContent
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}
