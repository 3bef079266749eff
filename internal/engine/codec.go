package engine

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// StorageFailureMessage is written into a run-cache entry when the real
// result cannot be serialized, so pollers see an explicit failure instead of
// waiting on a key that never appears.
const StorageFailureMessage = "Error storing the results"

// cacheEntry is the serialized tuple shared by both cache namespaces.
type cacheEntry struct {
	Columns  []string   `msgpack:"columns"`
	Rows     [][]any    `msgpack:"rows"`
	Error    string     `msgpack:"error"`
	CachedAt *time.Time `msgpack:"cached_at"`
}

func encodeResult(result Result, cachedAt time.Time) ([]byte, error) {
	entry := cacheEntry{
		Columns:  result.Columns,
		Rows:     result.Rows,
		Error:    result.Error,
		CachedAt: &cachedAt,
	}
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (Result, error) {
	var entry cacheEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return Result{}, fmt.Errorf("decode cache entry: %w", err)
	}
	result := Result{
		Columns:  entry.Columns,
		Rows:     entry.Rows,
		Error:    entry.Error,
		CachedAt: entry.CachedAt,
		Cached:   true,
	}
	if result.Columns == nil {
		result.Columns = []string{}
	}
	if result.Rows == nil {
		result.Rows = [][]any{}
	}
	result.TimedOut = result.Error == TimeoutMessage
	return result, nil
}

// encodePlaceholder builds the storage-failure entry for the run cache. It
// holds no rows and cannot itself fail to serialize.
func encodePlaceholder(cachedAt time.Time) []byte {
	data, err := msgpack.Marshal(cacheEntry{
		Columns:  []string{},
		Rows:     [][]any{},
		Error:    StorageFailureMessage,
		CachedAt: &cachedAt,
	})
	if err != nil {
		return nil
	}
	return data
}
