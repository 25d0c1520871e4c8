package requestdao

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/gox/slicex"
)

const (
	// currentSK holds the latest state of a request
	currentSK = "current"

	// eventPrefix prefixes the sort key of every recorded transition
	eventPrefix = "event:"
)

// TableName returns the request table name for an environment
func TableName(env string) string {
	return fmt.Sprintf("tf-provisioner-%s-requests", env)
}

// PK is the request id; every record of a request shares it
type PK string

func NewPK(requestID string) PK {
	return PK(requestID)
}

func (pk PK) String() string {
	return string(pk)
}

// NewEventSK returns a time-ordered sort key for a transition. Nanoseconds
// are zero padded so lexical order matches chronological order.
func NewEventSK(at time.Time) string {
	return fmt.Sprintf("%s%019d", eventPrefix, at.UnixNano())
}

// parseEventSK extracts the transition time from an event sort key
func parseEventSK(sk string) (time.Time, error) {
	if !strings.HasPrefix(sk, eventPrefix) {
		return time.Time{}, fmt.Errorf("invalid event SK format: %s, expected %s{nanos}", sk, eventPrefix)
	}
	nanos, err := strconv.ParseInt(strings.TrimPrefix(sk, eventPrefix), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event SK format: %s: %w", sk, err)
	}
	return time.Unix(0, nanos), nil
}

// terminal states set FinishedAt
var terminal = map[string]bool{
	"SUCCEEDED": true,
	"FAILED":    true,
}

// Record is either the current state of a request (SK "current") or one
// recorded transition (SK "event:{nanos}")
type Record struct {
	PK           PK      `ddb:"hash" dynamodbav:"pk"`
	SK           string  `ddb:"range" dynamodbav:"sk"`
	State        string  `dynamodbav:"state,omitempty"`
	Message      string  `dynamodbav:"message,omitempty"`
	Input        string  `dynamodbav:"input,omitempty"`         // Natural-language request, current record only
	ExecutionArn *string `dynamodbav:"execution_arn,omitempty"` // Step Functions execution ARN
	CreatedAt    int64   `dynamodbav:"created_at,omitempty"`    // Unix epoch timestamp of creation
	FinishedAt   *int64  `dynamodbav:"finished_at,omitempty"`   // Unix epoch timestamp of SUCCEEDED or FAILED
	UpdatedAt    int64   `dynamodbav:"updated_at,omitempty"`    // Unix epoch timestamp of last update
}

// At returns when the record was written: the sort key time for events,
// CreatedAt otherwise
func (r Record) At() time.Time {
	if at, err := parseEventSK(r.SK); err == nil {
		return at
	}
	return time.Unix(r.CreatedAt, 0)
}

// RequestID returns the request the record belongs to
func (r Record) RequestID() string {
	return r.PK.String()
}

// IsEvent reports whether the record is a transition rather than the current state
func (r Record) IsEvent() bool {
	return strings.HasPrefix(r.SK, eventPrefix)
}

// CreateInput contains the fields recorded when a request is started
type CreateInput struct {
	RequestID    string
	Input        string
	ExecutionArn string
	State        string
}

// DAO stores request status in DynamoDB
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create writes the current record for a newly started request
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	now := time.Now().Unix()

	record := Record{
		PK:        NewPK(input.RequestID),
		SK:        currentSK,
		State:     input.State,
		Input:     input.Input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.ExecutionArn != "" {
		record.ExecutionArn = &input.ExecutionArn
	}

	if err := d.table.Put(&record).RunWithContext(ctx); err != nil {
		return Record{}, fmt.Errorf("failed to create request record: %w", err)
	}
	return record, nil
}

// Record updates the current state of a request and appends the transition
// to its history in a single transaction
func (d *DAO) Record(ctx context.Context, requestID, state, message string) error {
	if requestID == "" || state == "" {
		return fmt.Errorf("request id and state are required")
	}

	at := time.Now()
	now := at.Unix()
	pk := NewPK(requestID)

	update := d.table.Update(pk.String()).
		Range(currentSK).
		Set("#State = ?", state).
		Set("#Message = ?", message).
		Set("#UpdatedAt = ?", now)

	if terminal[state] {
		update = update.Set("#FinishedAt = ?", now)
	}

	event := &Record{
		PK:        pk,
		SK:        NewEventSK(at),
		State:     state,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	put := d.table.Put(event)

	if _, err := d.db.TransactWriteItemsWithContext(ctx, update, put); err != nil {
		return fmt.Errorf("failed to record state %s for request %s: %w", state, requestID, err)
	}
	return nil
}

// StartExecution stores the Step Functions execution ARN on the current record
func (d *DAO) StartExecution(ctx context.Context, requestID, executionArn string) error {
	err := d.table.Update(NewPK(requestID).String()).
		Range(currentSK).
		Set("#ExecutionArn = ?", executionArn).
		Set("#UpdatedAt = ?", time.Now().Unix()).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to store execution arn for request %s: %w", requestID, err)
	}
	return nil
}

// Find returns the current record for a request
func (d *DAO) Find(ctx context.Context, requestID string) (Record, error) {
	var record Record

	err := d.table.Get(NewPK(requestID).String()).
		Range(currentSK).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("request record not found: %s", requestID)
		}
		return Record{}, fmt.Errorf("failed to find request record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("request record not found: %s", requestID)
	}
	return record, nil
}

// History returns the recorded transitions of a request, oldest first
func (d *DAO) History(ctx context.Context, requestID string) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", NewPK(requestID).String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query request history: %w", err)
	}

	return events(records), nil
}

// States returns the state names of records, in order
func States(records []Record) []string {
	return slicex.Map(records, func(r Record) string { return r.State })
}

// events keeps transition records and orders them by time
func events(records []Record) []Record {
	var out []Record
	for _, r := range records {
		if r.IsEvent() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SK < out[j].SK
	})
	return out
}
