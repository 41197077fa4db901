package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/havenline/call-qa/internal/pkg/apperr"
)

// CounselorProfile is the per-counselor record bootstrapped by the pipeline
// and maintained through the profile API. The pipeline only ever creates;
// it must never overwrite program lists or the active flag set by an admin.
type CounselorProfile struct {
	ID        string    `json:"counselorId" dynamodbav:"counselorId"`
	Name      string    `json:"counselorName" dynamodbav:"counselorName"`
	Programs  []string  `json:"programs" dynamodbav:"programs"`
	Active    bool      `json:"active" dynamodbav:"active"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// ProfileStore persists counselor profiles.
type ProfileStore interface {
	// EnsureProfile creates the profile if absent and does nothing if it
	// already exists. Safe under concurrent first-time creation: exactly
	// one profile is stored per id no matter how many callers race.
	EnsureProfile(ctx context.Context, id, name string) error
	// Create stores a new profile, returning a Conflict error on duplicate id.
	Create(ctx context.Context, p CounselorProfile) error
	// Update replaces mutable fields, returning NotFound for unknown ids.
	Update(ctx context.Context, p CounselorProfile) error
	Get(ctx context.Context, id string) (*CounselorProfile, error)
	List(ctx context.Context) ([]CounselorProfile, error)
}

// DynamoDBAPI is the slice of the DynamoDB client the stores use.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoProfileStore is the DynamoDB-backed ProfileStore.
type DynamoProfileStore struct {
	client          DynamoDBAPI
	table           string
	defaultPrograms []string
}

// NewDynamoProfileStore wraps a DynamoDB client and table name.
func NewDynamoProfileStore(client DynamoDBAPI, table string, defaultPrograms []string) *DynamoProfileStore {
	return &DynamoProfileStore{client: client, table: table, defaultPrograms: defaultPrograms}
}

// EnsureProfile performs a conditional create. A plain read-then-write is
// racy when two evaluations for a brand-new counselor land simultaneously;
// the attribute_not_exists condition makes DynamoDB arbitrate instead.
func (s *DynamoProfileStore) EnsureProfile(ctx context.Context, id, name string) error {
	now := time.Now().UTC()
	p := CounselorProfile{
		ID:        id,
		Name:      name,
		Programs:  append([]string(nil), s.defaultPrograms...),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.conditionalPut(ctx, p)
	if err != nil && apperr.Is(err, apperr.Conflict) {
		// Already exists: leave the stored profile untouched.
		return nil
	}
	return err
}

// Create stores a new profile; duplicates surface as Conflict.
func (s *DynamoProfileStore) Create(ctx context.Context, p CounselorProfile) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Programs == nil {
		p.Programs = append([]string(nil), s.defaultPrograms...)
	}
	return s.conditionalPut(ctx, p)
}

func (s *DynamoProfileStore) conditionalPut(ctx context.Context, p CounselorProfile) error {
	av, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(counselorId)"),
	})
	if err != nil {
		var cond *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return apperr.New(apperr.Conflict, "counselor %s already exists", p.ID)
		}
		return fmt.Errorf("putting profile: %w", err)
	}
	return nil
}

// Update rewrites mutable fields of an existing profile.
func (s *DynamoProfileStore) Update(ctx context.Context, p CounselorProfile) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"counselorId": &ddbtypes.AttributeValueMemberS{Value: p.ID},
		},
		UpdateExpression:    aws.String("SET counselorName = :n, programs = :p, active = :a, updatedAt = :u"),
		ConditionExpression: aws.String("attribute_exists(counselorId)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":n": &ddbtypes.AttributeValueMemberS{Value: p.Name},
			":p": mustMarshalList(p.Programs),
			":a": &ddbtypes.AttributeValueMemberBOOL{Value: p.Active},
			":u": &ddbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var cond *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return apperr.New(apperr.NotFound, "counselor %s not found", p.ID)
		}
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

func mustMarshalList(items []string) ddbtypes.AttributeValue {
	av, err := attributevalue.Marshal(items)
	if err != nil {
		return &ddbtypes.AttributeValueMemberL{}
	}
	return av
}

// Get fetches one profile.
func (s *DynamoProfileStore) Get(ctx context.Context, id string) (*CounselorProfile, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"counselorId": &ddbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	if out.Item == nil {
		return nil, apperr.New(apperr.NotFound, "counselor %s not found", id)
	}

	var p CounselorProfile
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling profile: %w", err)
	}
	return &p, nil
}

// List returns all profiles (admin/dashboard read path).
func (s *DynamoProfileStore) List(ctx context.Context) ([]CounselorProfile, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return nil, fmt.Errorf("scanning profiles: %w", err)
	}

	profiles := make([]CounselorProfile, 0, len(out.Items))
	for _, item := range out.Items {
		var p CounselorProfile
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			continue
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}

// MemoryProfileStore is an in-process ProfileStore for tests and local runs.
type MemoryProfileStore struct {
	mu              sync.Mutex
	profiles        map[string]CounselorProfile
	defaultPrograms []string
}

// NewMemoryProfileStore builds an empty in-memory store.
func NewMemoryProfileStore(defaultPrograms []string) *MemoryProfileStore {
	return &MemoryProfileStore{
		profiles:        make(map[string]CounselorProfile),
		defaultPrograms: defaultPrograms,
	}
}

// EnsureProfile is the in-memory conditional create; the mutex stands in
// for DynamoDB's condition expression.
func (s *MemoryProfileStore) EnsureProfile(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; ok {
		return nil
	}
	now := time.Now().UTC()
	s.profiles[id] = CounselorProfile{
		ID:        id,
		Name:      name,
		Programs:  append([]string(nil), s.defaultPrograms...),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// Create stores a new profile; duplicates surface as Conflict.
func (s *MemoryProfileStore) Create(ctx context.Context, p CounselorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return apperr.New(apperr.Conflict, "counselor %s already exists", p.ID)
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Programs == nil {
		p.Programs = append([]string(nil), s.defaultPrograms...)
	}
	s.profiles[p.ID] = p
	return nil
}

// Update replaces mutable fields of an existing profile.
func (s *MemoryProfileStore) Update(ctx context.Context, p CounselorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.profiles[p.ID]
	if !ok {
		return apperr.New(apperr.NotFound, "counselor %s not found", p.ID)
	}
	existing.Name = p.Name
	existing.Programs = p.Programs
	existing.Active = p.Active
	existing.UpdatedAt = time.Now().UTC()
	s.profiles[p.ID] = existing
	return nil
}

// Get fetches one profile.
func (s *MemoryProfileStore) Get(ctx context.Context, id string) (*CounselorProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "counselor %s not found", id)
	}
	cp := p
	return &cp, nil
}

// List returns all profiles sorted by id.
func (s *MemoryProfileStore) List(ctx context.Context) ([]CounselorProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles := make([]CounselorProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}
