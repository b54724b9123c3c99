// Package newstest provides an in-memory S3 double for tests.
package newstest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Store is a fake bucket keyed by "bucket/key". Listing returns keys in
// lexical order, PageSize per page.
type Store struct {
	Objects  map[string][]byte
	PageSize int

	// Optional failure injection.
	ListErr error
	GetErr  map[string]error
	PutErr  error

	ListCalls int
	GetCalls  []string
	Puts      map[string][]byte
}

func NewStore() *Store {
	return &Store{
		Objects:  map[string][]byte{},
		PageSize: 2,
		GetErr:   map[string]error{},
		Puts:     map[string][]byte{},
	}
}

func (s *Store) Add(bucket, key string, body []byte) {
	s.Objects[bucket+"/"+key] = body
}

// Calls is the total number of storage calls observed.
func (s *Store) Calls() int {
	return s.ListCalls + len(s.GetCalls) + len(s.Puts)
}

func (s *Store) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	s.ListCalls++
	if s.ListErr != nil {
		return nil, s.ListErr
	}

	bucket := aws.ToString(in.Bucket)
	prefix := aws.ToString(in.Prefix)

	var keys []string
	for k := range s.Objects {
		b, key, _ := strings.Cut(k, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("bad continuation token %q", tok)
		}
		start = n
	}
	size := s.PageSize
	if size <= 0 {
		size = 1000
	}
	end := min(start+size, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (s *Store) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	s.GetCalls = append(s.GetCalls, key)
	if err := s.GetErr[key]; err != nil {
		return nil, err
	}
	body, ok := s.Objects[aws.ToString(in.Bucket)+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey: " + key)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (s *Store) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.Puts[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = raw
	return &s3.PutObjectOutput{}, nil
}
