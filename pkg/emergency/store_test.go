package emergency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/teslashibe/go-guardian/internal/log"
	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
)

func testIncidents() []Incident {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var out []Incident
	for i := 0; i < 5; i++ {
		inc := Incident{
			ID:        string(rune('a' + i)),
			Kind:      IncidentDetection,
			Source:    events.SourceAI,
			Title:     "test",
			Severity:  SeverityHigh,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i%2 == 0 {
			inc.setLocation(&geo.Point{Lat: 40, Lng: -74})
		}
		out = append(out, inc)
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(3)
	for _, inc := range testIncidents() {
		if err := s.Save(context.Background(), inc); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}

	recent, _ := s.Recent(context.Background(), 2)
	if len(recent) != 2 || recent[0].ID != "e" || recent[1].ID != "d" {
		t.Errorf("recent = %+v, want e,d", recent)
	}
	all, _ := s.Recent(context.Background(), 0)
	if len(all) != 3 || all[2].ID != "c" {
		t.Errorf("all = %+v", all)
	}
}

// fakeDynamo keeps items in memory and pages scans two items at a time.
type fakeDynamo struct {
	items   []map[string]dynamodbtypes.AttributeValue
	putErr  error
	scans   int
	table   string
	pageLen int
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.table = *in.TableName
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans++
	start := 0
	if in.ExclusiveStartKey != nil {
		id := in.ExclusiveStartKey["id"].(*dynamodbtypes.AttributeValueMemberS).Value
		for i, item := range f.items {
			if item["id"].(*dynamodbtypes.AttributeValueMemberS).Value == id {
				start = i + 1
			}
		}
	}
	end := start + f.pageLen
	if end > len(f.items) {
		end = len(f.items)
	}
	out := &dynamodb.ScanOutput{Items: f.items[start:end]}
	if end < len(f.items) {
		out.LastEvaluatedKey = map[string]dynamodbtypes.AttributeValue{"id": f.items[end-1]["id"]}
	}
	return out, nil
}

func TestDynamoDBStore(t *testing.T) {
	fake := &fakeDynamo{pageLen: 2}
	s := NewDynamoDBStore(fake, "guardian-incidents", log.Discard())

	for _, inc := range testIncidents() {
		if err := s.Save(context.Background(), inc); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if fake.table != "guardian-incidents" {
		t.Errorf("table = %q", fake.table)
	}
	if _, ok := fake.items[0]["created_at"]; !ok {
		t.Errorf("item attributes = %v, want created_at", fake.items[0])
	}

	recent, err := s.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if fake.scans != 3 {
		t.Errorf("scan pages = %d, want 3", fake.scans)
	}
	if len(recent) != 3 || recent[0].ID != "e" || recent[2].ID != "c" {
		t.Errorf("recent = %+v", recent)
	}
	if loc := recent[0].Location(); loc == nil || loc.Lat != 40 {
		t.Errorf("location = %v, want round-tripped", loc)
	}
	if recent[1].Location() != nil {
		t.Errorf("location = %v, want nil", recent[1].Location())
	}
	if !recent[0].CreatedAt.Equal(testIncidents()[4].CreatedAt) {
		t.Errorf("created_at = %v", recent[0].CreatedAt)
	}
}

func TestDynamoDBStoreSaveError(t *testing.T) {
	boom := errors.New("throttled")
	s := NewDynamoDBStore(&fakeDynamo{putErr: boom}, "t", log.Discard())
	if err := s.Save(context.Background(), testIncidents()[0]); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped throttled", err)
	}
}
