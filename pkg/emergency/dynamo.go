package emergency

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the part of *dynamodb.Client the store uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBStore keeps incidents in a DynamoDB table keyed by "id".
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	logger    *slog.Logger
}

// NewDynamoDBClient loads the default AWS config for region. A non-empty
// endpoint points the client at a local DynamoDB.
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("emergency: load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoDBStore creates a store over an existing client.
func NewDynamoDBStore(client DynamoDBAPI, tableName string, logger *slog.Logger) *DynamoDBStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		logger:    logger.With("component", "emergency.dynamodb"),
	}
}

// Save puts inc into the table.
func (s *DynamoDBStore) Save(ctx context.Context, inc Incident) error {
	item, err := attributevalue.MarshalMap(inc)
	if err != nil {
		return fmt.Errorf("emergency: marshal incident: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("emergency: save incident: %w", err)
	}
	s.logger.Debug("incident saved", "id", inc.ID)
	return nil
}

// Recent scans the table and returns the newest incidents. The incident log
// is small, so a full scan is acceptable.
func (s *DynamoDBStore) Recent(ctx context.Context, limit int) ([]Incident, error) {
	var incidents []Incident
	var lastKey map[string]dynamodbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName: aws.String(s.tableName),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("emergency: scan incidents: %w", err)
		}

		for _, item := range out.Items {
			var inc Incident
			if err := attributevalue.UnmarshalMap(item, &inc); err != nil {
				s.logger.Warn("skipping malformed incident", "error", err)
				continue
			}
			incidents = append(incidents, inc)
		}

		lastKey = out.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	sortNewestFirst(incidents)
	if limit > 0 && len(incidents) > limit {
		incidents = incidents[:limit]
	}
	return incidents, nil
}
