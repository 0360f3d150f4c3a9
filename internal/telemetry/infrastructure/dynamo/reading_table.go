package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

const defaultTable = "ManufacturingAnalytics"

// API is the subset of the DynamoDB client used by the table.
type API interface {
	PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error)
	QueryWithContext(ctx aws.Context, input *dynamodb.QueryInput, opts ...request.Option) (*dynamodb.QueryOutput, error)
}

// NewClient builds a DynamoDB client for region from the default credential chain.
func NewClient(region string) (*dynamodb.DynamoDB, error) {
	cfg := &aws.Config{}
	if region != "" {
		cfg.Region = aws.String(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("dynamo: new session: %w", err)
	}
	return dynamodb.New(sess), nil
}

type item struct {
	PK              string  `dynamodbav:"PK"`
	SK              string  `dynamodbav:"SK"`
	RecordID        string  `dynamodbav:"record_id"`
	MachineID       int     `dynamodbav:"machine_id"`
	Timestamp       string  `dynamodbav:"timestamp"`
	Author          string  `dynamodbav:"author,omitempty"`
	Mode            string  `dynamodbav:"mode"`
	Temperature     float64 `dynamodbav:"temperature"`
	Vibration       float64 `dynamodbav:"vibration"`
	EfficiencyScore float64 `dynamodbav:"efficiency_score"`
	EfficiencyLevel string  `dynamodbav:"efficiency_level"`
	IsAnomaly       bool    `dynamodbav:"is_anomaly"`
	ProcessedAt     string  `dynamodbav:"processed_at"`
}

func partitionKey(machineID int) string {
	return "MACHINE#" + strconv.Itoa(machineID)
}

func sortKey(reading telemetry.ScoredReading) string {
	return reading.Timestamp + "#" + reading.RecordID
}

// ReadingTable stores scored readings with one partition per machine, sorted
// by reading timestamp.
type ReadingTable struct {
	api   API
	table string
}

// TableOption configures the table.
type TableOption func(*ReadingTable)

// WithTable overrides the default table name.
func WithTable(table string) TableOption {
	return func(t *ReadingTable) {
		if table != "" {
			t.table = table
		}
	}
}

// NewReadingTable constructs a table.
func NewReadingTable(api API, opts ...TableOption) (*ReadingTable, error) {
	if api == nil {
		return nil, errors.New("dynamo: nil client")
	}
	t := &ReadingTable{api: api, table: defaultTable}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Store puts one reading. Writing the same record twice is not an error.
func (t *ReadingTable) Store(ctx context.Context, reading telemetry.ScoredReading) error {
	if reading.RecordID == "" || reading.MachineID <= 0 {
		return errors.New("dynamo: invalid reading")
	}
	av, err := dynamodbattribute.MarshalMap(item{
		PK:              partitionKey(reading.MachineID),
		SK:              sortKey(reading),
		RecordID:        reading.RecordID,
		MachineID:       reading.MachineID,
		Timestamp:       reading.Timestamp,
		Author:          reading.Author,
		Mode:            string(reading.Mode),
		Temperature:     reading.Temperature,
		Vibration:       reading.Vibration,
		EfficiencyScore: reading.EfficiencyScore,
		EfficiencyLevel: reading.EfficiencyLevel,
		IsAnomaly:       reading.IsAnomaly,
		ProcessedAt:     reading.ProcessedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("dynamo: marshal: %w", err)
	}

	_, err = t.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return nil
		}
		return fmt.Errorf("dynamo: put item: %w", err)
	}
	return nil
}

// ListRecent returns up to limit readings of a machine, newest first.
func (t *ReadingTable) ListRecent(ctx context.Context, machineID, limit int) ([]telemetry.ScoredReading, error) {
	if limit <= 0 {
		return nil, nil
	}
	out, err := t.api.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(t.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pk": {S: aws.String(partitionKey(machineID))},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int64(int64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: query: %w", err)
	}

	var items []item
	if err := dynamodbattribute.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal: %w", err)
	}
	readings := make([]telemetry.ScoredReading, 0, len(items))
	for _, it := range items {
		processedAt, err := time.Parse(time.RFC3339Nano, it.ProcessedAt)
		if err != nil {
			return nil, fmt.Errorf("dynamo: record %s: processed_at %q: %w", it.RecordID, it.ProcessedAt, err)
		}
		readings = append(readings, telemetry.ScoredReading{
			SensorReading: telemetry.SensorReading{
				MachineID:   it.MachineID,
				Temperature: it.Temperature,
				Vibration:   it.Vibration,
				Mode:        telemetry.ParseMode(it.Mode),
				Timestamp:   it.Timestamp,
				Author:      it.Author,
			},
			RecordID:        it.RecordID,
			EfficiencyScore: it.EfficiencyScore,
			IsAnomaly:       it.IsAnomaly,
			EfficiencyLevel: it.EfficiencyLevel,
			ProcessedAt:     processedAt,
		})
	}
	return readings, nil
}
