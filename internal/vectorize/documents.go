package vectorize

import (
	"fmt"
	"maps"
	"strconv"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"newsetl/internal/news"
	"newsetl/internal/pinecone"
)

const (
	textField      = "text"
	publisherField = "publisher"
	titleField     = "title"
)

// Separators are tried in order: paragraph, line, word, character.
var Separators = []string{"\n\n", "\n", " ", ""}

// Documents builds one document per article: the text field becomes the
// content, every other field the metadata. Articles are not modified.
func Documents(articles []news.Article) ([]schema.Document, error) {
	docs := make([]schema.Document, 0, len(articles))
	for _, a := range articles {
		text, err := a.String(textField)
		if err != nil {
			return nil, err
		}
		meta := maps.Clone(a.Fields)
		delete(meta, textField)
		docs = append(docs, schema.Document{PageContent: text, Metadata: meta})
	}
	return docs, nil
}

// NewSplitter returns the recursive splitter used for chunking.
func NewSplitter(chunkSize, chunkOverlap int) textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(Separators),
	)
}

// Split chunks every document, keeping document order and chunk order.
// Chunks carry their parent's metadata.
func Split(splitter textsplitter.TextSplitter, docs []schema.Document) ([]schema.Document, error) {
	chunks, err := textsplitter.SplitDocuments(splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("split documents: %w", err)
	}
	return chunks, nil
}

// NormalizeMetadata returns a copy of meta with the nested publisher
// mapping replaced by its title. meta itself is never written.
func NormalizeMetadata(meta map[string]any) (map[string]any, error) {
	out := maps.Clone(meta)
	if out == nil {
		out = map[string]any{}
	}

	switch p := out[publisherField].(type) {
	case string:
		// already flat
	case map[string]any:
		title, ok := p[titleField].(string)
		if !ok {
			return nil, &news.MissingFieldError{Field: publisherField + "." + titleField}
		}
		out[publisherField] = title
	case nil:
		return nil, &news.MissingFieldError{Field: publisherField}
	default:
		return nil, &news.MissingFieldError{Field: publisherField, Reason: "is not a mapping"}
	}
	return out, nil
}

// VectorID is the run-local id of the i-th chunk.
func VectorID(i int) string {
	return "vec" + strconv.Itoa(i)
}

// Records joins chunks and vectors by position into upsert records.
func Records(chunks []schema.Document, vectors [][]float32) ([]pinecone.Vector, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(vectors))
	}
	out := make([]pinecone.Vector, len(chunks))
	for i := range chunks {
		meta, err := NormalizeMetadata(chunks[i].Metadata)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", VectorID(i), err)
		}
		out[i] = pinecone.Vector{ID: VectorID(i), Values: vectors[i], Metadata: meta}
	}
	return out, nil
}
