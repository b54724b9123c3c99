package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectReader is the slice of the S3 API the source walks.
type ObjectReader interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source lists one date partition of a bucket and decodes its JSON articles.
type Source struct {
	s3     ObjectReader
	logger *slog.Logger
}

func NewSource(client ObjectReader, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		s3:     client,
		logger: logger.With("component", "article-source"),
	}
}

// Articles walks every page of objects under prefix and yields one Article
// per ".json" key, in listing order. Other keys are skipped. The sequence
// ends after the first error; it is single-pass and re-lists on every range.
func (s *Source) Articles(ctx context.Context, bucket, prefix string) iter.Seq2[Article, error] {
	return func(yield func(Article, error) bool) {
		s.logger.Debug("listing partition", "bucket", bucket, "prefix", prefix)

		p := s3.NewListObjectsV2Paginator(s.s3, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})

		found := 0
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(Article{}, fmt.Errorf("s3 list %s/%s: %w", bucket, prefix, err))
				return
			}

			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				if !IsJSONKey(key) {
					s.logger.Debug("skipping non-json object", "key", key)
					continue
				}
				s.logger.Debug("found json file", "key", key)

				a, err := s.fetch(ctx, bucket, key)
				if err != nil {
					yield(Article{}, err)
					return
				}
				found++
				if !yield(a, nil) {
					return
				}
			}
		}

		s.logger.Debug("finished listing partition", "articles", found)
	}
}

func (s *Source) fetch(ctx context.Context, bucket, key string) (Article, error) {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Article{}, fmt.Errorf("s3 getobject %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return Article{}, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}

	fields, err := DecodeArticle(raw)
	if err != nil {
		return Article{}, &DecodeError{Key: key, Err: err}
	}
	return Article{Key: key, Fields: fields}, nil
}

// DecodeArticle parses one UTF-8 JSON object.
func DecodeArticle(raw []byte) (map[string]any, error) {
	if !utf8.Valid(raw) {
		return nil, errors.New("body is not valid UTF-8")
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("body is not a JSON object")
	}
	return fields, nil
}
