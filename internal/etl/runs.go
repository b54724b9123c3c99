package etl

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type RunsClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// runRecordTTL keeps run records for 30 days.
const runRecordTTL = 30 * 24 * time.Hour

// RunRecord is one row of the run ledger.
// PK = RUN#<date>
// SK = <startedAt>#<runID>
type RunRecord struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	RunID      string `dynamodbav:"RunId"`
	Mode       string `dynamodbav:"Mode"`
	Date       string `dynamodbav:"Date"`
	Status     string `dynamodbav:"Status"`
	Error      string `dynamodbav:"Error,omitempty"`
	Articles   int    `dynamodbav:"Articles"`
	Chunks     int    `dynamodbav:"Chunks,omitempty"`
	Batches    int    `dynamodbav:"Batches,omitempty"`
	ObjectKey  string `dynamodbav:"ObjectKey,omitempty"`
	StartedAt  string `dynamodbav:"StartedAt"`
	FinishedAt string `dynamodbav:"FinishedAt"`
	ExpiresAt  int64  `dynamodbav:"ExpiresAt"`
}

const (
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

func newRunRecord(runID, mode, date string, started, finished time.Time, sum *Summary, runErr error) RunRecord {
	rec := RunRecord{
		PK:         "RUN#" + date,
		SK:         started.UTC().Format(time.RFC3339) + "#" + runID,
		RunID:      runID,
		Mode:       mode,
		Date:       date,
		Status:     StatusSucceeded,
		StartedAt:  started.UTC().Format(time.RFC3339),
		FinishedAt: finished.UTC().Format(time.RFC3339),
		ExpiresAt:  finished.Add(runRecordTTL).Unix(),
	}
	if sum != nil {
		rec.Articles = sum.Articles
		rec.Chunks = sum.Chunks
		rec.Batches = sum.Batches
		rec.ObjectKey = sum.Key
	}
	if runErr != nil {
		rec.Status = StatusFailed
		rec.Error = truncate(runErr.Error(), 1000)
	}
	return rec
}

// RecordRun writes rec to the run ledger table.
func RecordRun(ctx context.Context, ddb RunsClient, table string, rec RunRecord) error {
	table = strings.TrimSpace(table)
	if table == "" {
		return fmt.Errorf("missing runs table")
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	_, err = ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb putitem %s: %w", table, err)
	}
	return nil
}

// truncate cuts s to at most n bytes, backing off to a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
