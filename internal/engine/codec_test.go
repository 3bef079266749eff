package engine

import (
	"testing"
	"time"
)

func TestEncodeDecodeResult(t *testing.T) {
	cachedAt := time.Now().UTC().Truncate(time.Millisecond)
	result := Result{
		Columns: []string{"id", "name"},
		Rows: [][]any{
			{int64(1), "alpha"},
			{int64(2), "beta"},
		},
	}

	data, err := encodeResult(result, cachedAt)
	if err != nil {
		t.Fatalf("encodeResult() error = %v", err)
	}
	decoded, err := decodeResult(data)
	if err != nil {
		t.Fatalf("decodeResult() error = %v", err)
	}
	if !decoded.Cached {
		t.Fatal("decoded result should be marked cached")
	}
	if decoded.CachedAt == nil || !decoded.CachedAt.Equal(cachedAt) {
		t.Fatalf("CachedAt = %v, want %v", decoded.CachedAt, cachedAt)
	}
	if len(decoded.Rows) != 2 || len(decoded.Columns) != 2 {
		t.Fatalf("decoded shape = %d cols, %d rows", len(decoded.Columns), len(decoded.Rows))
	}
	if decoded.Rows[0][1] != "alpha" {
		t.Fatalf("Rows[0][1] = %v", decoded.Rows[0][1])
	}
}

func TestDecodeRestoresTimeoutFlag(t *testing.T) {
	data, err := encodeResult(timeoutResult(), time.Now())
	if err != nil {
		t.Fatalf("encodeResult() error = %v", err)
	}
	decoded, err := decodeResult(data)
	if err != nil {
		t.Fatalf("decodeResult() error = %v", err)
	}
	if !decoded.TimedOut {
		t.Fatal("timeout flag not restored from canonical message")
	}
	if decoded.Error != TimeoutMessage {
		t.Fatalf("Error = %q", decoded.Error)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := decodeResult([]byte("not msgpack")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEncodePlaceholder(t *testing.T) {
	data := encodePlaceholder(time.Now())
	if data == nil {
		t.Fatal("placeholder must serialize")
	}
	decoded, err := decodeResult(data)
	if err != nil {
		t.Fatalf("decodeResult() error = %v", err)
	}
	if decoded.Error != StorageFailureMessage {
		t.Fatalf("Error = %q", decoded.Error)
	}
	if len(decoded.Rows) != 0 {
		t.Fatalf("placeholder has %d rows", len(decoded.Rows))
	}
}
