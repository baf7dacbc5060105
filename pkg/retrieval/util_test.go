package retrieval

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDecodeMetadataEmpty(t *testing.T) {
	if m := decodeMetadata(nil); len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}

func TestDecodeMetadataMalformedFallsBackToEmpty(t *testing.T) {
	if m := decodeMetadata([]byte("not json")); len(m) != 0 {
		t.Fatalf("expected empty map for malformed JSON, got %v", m)
	}
}

func TestVolatilityClassOfDefaultsToLow(t *testing.T) {
	if got := volatilityClassOf([]byte(`{}`)); got != "low" {
		t.Fatalf("got %q want low", got)
	}
}

func TestVolatilityClassOfReadsMetadata(t *testing.T) {
	if got := volatilityClassOf([]byte(`{"volatility_class":"high"}`)); got != "high" {
		t.Fatalf("got %q want high", got)
	}
}

func TestApplySystemRecordTTLMarksExpired(t *testing.T) {
	rec := &SystemContextRecord{ID: uuid.New(), UpdatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	applySystemRecordTTL(rec, []byte(`{"ttl_days":1}`))
	if !rec.IsExpired {
		t.Fatal("expected record to be marked expired")
	}
	if rec.Warning == "" {
		t.Fatal("expected a warning message")
	}
}

func TestApplySystemRecordTTLNotExpired(t *testing.T) {
	rec := &SystemContextRecord{ID: uuid.New(), UpdatedAt: time.Now().UTC()}
	applySystemRecordTTL(rec, []byte(`{"ttl_days":30}`))
	if rec.IsExpired {
		t.Fatal("expected record to not be expired")
	}
}

func TestApplySystemRecordTTLNoTTLField(t *testing.T) {
	rec := &SystemContextRecord{ID: uuid.New(), UpdatedAt: time.Now().UTC().Add(-1000 * time.Hour)}
	applySystemRecordTTL(rec, []byte(`{}`))
	if rec.IsExpired {
		t.Fatal("expected record without ttl_days to never expire")
	}
}
