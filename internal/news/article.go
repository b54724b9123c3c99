package news

import (
	"iter"
	"strings"
)

// Article is one decoded news document. Fields holds the JSON object as is;
// Key is only kept for error messages.
type Article struct {
	Key    string
	Fields map[string]any
}

// Field returns the raw value of name, or a MissingFieldError when absent.
func (a Article) Field(name string) (any, error) {
	v, ok := a.Fields[name]
	if !ok {
		return nil, &MissingFieldError{Key: a.Key, Field: name}
	}
	return v, nil
}

// String returns the value of name, which must be present and a string.
func (a Article) String(name string) (string, error) {
	v, err := a.Field(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &MissingFieldError{Key: a.Key, Field: name, Reason: "is not a string"}
	}
	return s, nil
}

// Seq is a lazy, single-pass stream of articles.
type Seq = iter.Seq2[Article, error]

// IsJSONKey reports whether an object key names a JSON document.
func IsJSONKey(key string) bool {
	return strings.HasSuffix(key, ".json")
}

// Collect drains seq into a slice. It stops at the first error.
func Collect(seq iter.Seq2[Article, error]) ([]Article, error) {
	var out []Article
	for a, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// All yields articles in order as a sequence.
func All(articles []Article) iter.Seq2[Article, error] {
	return func(yield func(Article, error) bool) {
		for _, a := range articles {
			if !yield(a, nil) {
				return
			}
		}
	}
}
