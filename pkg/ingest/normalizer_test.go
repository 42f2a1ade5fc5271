package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/mastersleague/platform/pkg/common/models"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(func() time.Time { return testNow })
}

func validRaw() models.RawEvent {
	return models.RawEvent{
		SourceID:        "src-100",
		Title:           "Northern Masters Carnival",
		Date:            "2030-01-01",
		State:           "NSW",
		LocationAddress: "1 Park Rd, Newcastle",
		ContactName:     "Jo Smith",
		ContactEmail:    "jo@example.com",
	}
}

func TestNormalizeValidRecord(t *testing.T) {
	n := newTestNormalizer()

	candidate, err := n.Normalize(validRaw())
	if err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
	if candidate.ExternalKey != "src-100" {
		t.Fatalf("expected source id as external key, got %q", candidate.ExternalKey)
	}
	if candidate.ContentHash == "" {
		t.Fatal("expected a content hash")
	}
	if candidate.State != "NSW" {
		t.Fatalf("unexpected state %q", candidate.State)
	}
}

func TestNormalizeRejectsMissingFields(t *testing.T) {
	n := newTestNormalizer()

	for _, tc := range []struct {
		name   string
		mutate func(*models.RawEvent)
	}{
		{"title", func(r *models.RawEvent) { r.Title = "  " }},
		{"date", func(r *models.RawEvent) { r.Date = "" }},
		{"state", func(r *models.RawEvent) { r.State = "" }},
	} {
		raw := validRaw()
		tc.mutate(&raw)
		if _, err := n.Normalize(raw); !IsRejected(err) {
			t.Fatalf("expected rejection for missing %s, got %v", tc.name, err)
		}
	}
}

func TestNormalizeRejectsUnknownState(t *testing.T) {
	n := newTestNormalizer()
	raw := validRaw()
	raw.State = "XYZ"
	if _, err := n.Normalize(raw); !IsRejected(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestNormalizeDateHorizonBoundary(t *testing.T) {
	n := newTestNormalizer()

	raw := validRaw()
	raw.Date = testNow.AddDate(10, 0, 0).Format("2006-01-02")
	if _, err := n.Normalize(raw); err != nil {
		t.Fatalf("date exactly 10 years out must be accepted, got %v", err)
	}

	raw.Date = testNow.AddDate(10, 0, 1).Format("2006-01-02")
	if _, err := n.Normalize(raw); !IsRejected(err) {
		t.Fatalf("date 10 years + 1 day out must be rejected, got %v", err)
	}

	raw.Date = testNow.AddDate(-10, 0, -1).Format("2006-01-02")
	if _, err := n.Normalize(raw); !IsRejected(err) {
		t.Fatalf("date 10 years + 1 day in the past must be rejected, got %v", err)
	}
}

func TestNormalizeParseErrorRejected(t *testing.T) {
	n := newTestNormalizer()
	raw := models.RawEvent{ParseError: errors.New("bad record")}
	if _, err := n.Normalize(raw); !IsRejected(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestDerivedKeyIsStable(t *testing.T) {
	n := newTestNormalizer()

	first := validRaw()
	first.SourceID = ""

	second := first
	second.Title = "  NORTHERN   masters CARNIVAL "
	second.LocationAddress = "1  Park Rd,   Newcastle"

	a, err := n.Normalize(first)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	b, err := n.Normalize(second)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if a.ExternalKey != b.ExternalKey {
		t.Fatalf("expected identical derived keys, got %q and %q", a.ExternalKey, b.ExternalKey)
	}
}

func TestContentHashTracksCanonicalFields(t *testing.T) {
	n := newTestNormalizer()

	base, err := n.Normalize(validRaw())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	same, err := n.Normalize(validRaw())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if base.ContentHash != same.ContentHash {
		t.Fatal("normalize must be deterministic")
	}

	changed := validRaw()
	changed.Fees = "$40 per team"
	other, err := n.Normalize(changed)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if base.ContentHash == other.ContentHash {
		t.Fatal("content hash must change when a canonical field changes")
	}
	if base.ExternalKey != other.ExternalKey {
		t.Fatal("external key must not change with content")
	}
}

func TestNormalizeDropsInvalidEndDate(t *testing.T) {
	n := newTestNormalizer()
	raw := validRaw()
	raw.EndDate = "2029-12-01" // before the start date
	candidate, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if candidate.EndDate != nil {
		t.Fatal("end date before the start date must be dropped")
	}
}
