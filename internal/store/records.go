package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/havenline/call-qa/internal/pkg/apperr"
)

// EvaluationRecord is the append-only row written once per completed
// evaluation. Ids are time-derived and never reused, so records are never
// mutated after write.
type EvaluationRecord struct {
	CounselorID          string         `json:"counselorId" dynamodbav:"counselorId"`
	CounselorName        string         `json:"counselorName" dynamodbav:"counselorName"`
	EvaluationID         string         `json:"evaluationId" dynamodbav:"evaluationId"`
	AudioFileName        string         `json:"audioFileName" dynamodbav:"audioFileName"`
	EvaluationDate       string         `json:"evaluationDate" dynamodbav:"evaluationDate"`
	CategoryScores       map[string]int `json:"categoryScores" dynamodbav:"categoryScores"`
	TotalMultipliedScore int            `json:"totalMultipliedScore" dynamodbav:"totalMultipliedScore"`
	PercentageScore      float64        `json:"percentageScore" dynamodbav:"percentageScore"`
	Criteria             string         `json:"Criteria" dynamodbav:"Criteria"`
	ArtifactKey          string         `json:"artifactKey" dynamodbav:"artifactKey"`
}

// RecordStore persists evaluation records.
type RecordStore interface {
	WriteEvaluationRecord(ctx context.Context, rec EvaluationRecord) error
	ListByCounselor(ctx context.Context, counselorID string) ([]EvaluationRecord, error)
}

var (
	counselorIDRegex   = regexp.MustCompile(`[^a-z0-9_]`)
	counselorNameRegex = regexp.MustCompile(`[^A-Za-z .'-]`)
	fileNameRegex      = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

const (
	maxCounselorIDLen   = 64
	maxCounselorNameLen = 128
	maxFileNameLen      = 255
	maxFreeTextLen      = 256
)

// sanitizeRecord clamps and restricts every field before it is written.
// The record is the durable obligation of the pipeline; a hostile filename
// or out-of-range score must degrade to a safe value, not block the write.
func sanitizeRecord(rec EvaluationRecord) EvaluationRecord {
	rec.CounselorID = clampString(counselorIDRegex.ReplaceAllString(strings.ToLower(rec.CounselorID), ""), maxCounselorIDLen)
	if rec.CounselorID == "" {
		rec.CounselorID = UnknownCounselorID
	}
	rec.CounselorName = clampString(counselorNameRegex.ReplaceAllString(rec.CounselorName, ""), maxCounselorNameLen)
	if strings.TrimSpace(rec.CounselorName) == "" {
		rec.CounselorName = UnknownCounselorName
	}

	// Strip path traversal before the character filter so "../../x.wav"
	// cannot survive as a plausible-looking name.
	name := strings.ReplaceAll(rec.AudioFileName, "..", "")
	rec.AudioFileName = clampString(fileNameRegex.ReplaceAllString(name, ""), maxFileNameLen)

	for cat, score := range rec.CategoryScores {
		rec.CategoryScores[cat] = clampInt(score, 0, 100)
	}
	rec.Criteria = clampString(rec.Criteria, maxFreeTextLen)
	return rec
}

func clampString(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DynamoRecordStore is the DynamoDB-backed RecordStore.
type DynamoRecordStore struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoRecordStore wraps a DynamoDB client and table name.
func NewDynamoRecordStore(client DynamoDBAPI, table string) *DynamoRecordStore {
	return &DynamoRecordStore{client: client, table: table}
}

// WriteEvaluationRecord sanitizes and appends one record. Evaluation ids
// are always fresh, so no conditional write is needed.
func (s *DynamoRecordStore) WriteEvaluationRecord(ctx context.Context, rec EvaluationRecord) error {
	rec = sanitizeRecord(rec)
	if rec.EvaluationID == "" {
		return apperr.New(apperr.Validation, "evaluation record has no id")
	}

	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling evaluation record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting evaluation record: %w", err)
	}
	return nil
}

// ListByCounselor queries the records for one counselor (dashboard read path).
func (s *DynamoRecordStore) ListByCounselor(ctx context.Context, counselorID string) ([]EvaluationRecord, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("counselorId = :id"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":id": &ddbtypes.AttributeValueMemberS{Value: counselorID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying evaluation records: %w", err)
	}

	records := make([]EvaluationRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var rec EvaluationRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// MemoryRecordStore is an in-process RecordStore for tests and local runs.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records []EvaluationRecord
}

// NewMemoryRecordStore builds an empty in-memory store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

// WriteEvaluationRecord sanitizes and appends one record.
func (s *MemoryRecordStore) WriteEvaluationRecord(ctx context.Context, rec EvaluationRecord) error {
	rec = sanitizeRecord(rec)
	if rec.EvaluationID == "" {
		return apperr.New(apperr.Validation, "evaluation record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// ListByCounselor filters the stored records.
func (s *MemoryRecordStore) ListByCounselor(ctx context.Context, counselorID string) ([]EvaluationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []EvaluationRecord
	for _, rec := range s.records {
		if rec.CounselorID == counselorID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// NewEvaluationID derives a fresh, time-ordered evaluation id.
func NewEvaluationID(now time.Time) string {
	return fmt.Sprintf("eval_%d", now.UnixNano())
}
