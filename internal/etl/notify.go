package etl

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NotifyRun publishes a short run report to an SNS topic.
func NotifyRun(ctx context.Context, p Publisher, topicArn string, rec RunRecord) error {
	subject, message := buildMessage(rec)
	_, err := p.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func buildMessage(rec RunRecord) (subject string, body string) {
	subject = fmt.Sprintf("news-etl %s %s: %s", rec.Mode, rec.Date, rec.Status)

	lines := []string{
		"News ETL run",
		"",
		fmt.Sprintf("RunId: %s", rec.RunID),
		fmt.Sprintf("Mode: %s", rec.Mode),
		fmt.Sprintf("Partition: %s", rec.Date),
		fmt.Sprintf("Status: %s", rec.Status),
		fmt.Sprintf("Articles: %d", rec.Articles),
	}
	if rec.ObjectKey != "" {
		lines = append(lines, fmt.Sprintf("Object: %s", rec.ObjectKey))
	}
	if rec.Chunks > 0 {
		lines = append(lines, fmt.Sprintf("Chunks: %d", rec.Chunks), fmt.Sprintf("Batches: %d", rec.Batches))
	}
	if rec.Error != "" {
		lines = append(lines, "", "Error: "+rec.Error)
	}
	lines = append(lines, "", fmt.Sprintf("StartedAt: %s", rec.StartedAt), fmt.Sprintf("FinishedAt: %s", rec.FinishedAt))

	return subject, strings.Join(lines, "\n")
}
