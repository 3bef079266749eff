package engine

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// TimeoutMessage is the canonical error surfaced when a statement is killed
// by the dialect's timeout mechanism. Preserved verbatim across cache
// versions; TimedOut is true exactly when Error equals this message.
const TimeoutMessage = "Query timed out :("

// Result is the immutable outcome of one execution attempt. When Error is
// set, Rows is empty.
type Result struct {
	Columns  []string
	Rows     [][]any
	Error    string
	CachedAt *time.Time
	TimedOut bool
	Cached   bool
}

func errorResult(message string) Result {
	return Result{Columns: []string{}, Rows: [][]any{}, Error: message}
}

func timeoutResult() Result {
	result := errorResult(TimeoutMessage)
	result.TimedOut = true
	return result
}

// castRow converts raw driver values using the reported native column types.
// Columns without type metadata are passed through uncast.
func castRow(values []any, types []*sql.ColumnType) []any {
	cast := make([]any, len(values))
	for i, value := range values {
		var dbType string
		if i < len(types) && types[i] != nil {
			dbType = types[i].DatabaseTypeName()
		}
		cast[i] = castValue(value, dbType)
	}
	return cast
}

func castValue(value any, dbType string) any {
	raw, ok := value.([]byte)
	if !ok {
		return value
	}
	if dbType == "" {
		return value
	}
	text := string(raw)
	switch normalizeDBType(dbType) {
	case "INT", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT", "INT2", "INT4", "INT8", "INTEGER":
		if parsed, err := strconv.ParseInt(text, 10, 64); err == nil {
			return parsed
		}
	case "DECIMAL", "NUMERIC", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "REAL":
		if parsed, err := strconv.ParseFloat(text, 64); err == nil {
			return parsed
		}
	case "BOOL", "BOOLEAN":
		if parsed, err := strconv.ParseBool(text); err == nil {
			return parsed
		}
	case "TIMESTAMP", "TIMESTAMPTZ", "DATETIME":
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999Z07:00", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, text); err == nil {
				return parsed
			}
		}
	case "DATE":
		if parsed, err := time.Parse("2006-01-02", text); err == nil {
			return parsed
		}
	}
	return text
}

func normalizeDBType(dbType string) string {
	dbType = strings.ToUpper(dbType)
	// MySQL reports UNSIGNED variants; the base type drives the cast.
	return strings.TrimSuffix(dbType, " UNSIGNED")
}
