package adapter

import (
	"fmt"
	"strings"
)

// Family identifies the SQL dialect of a backend connection. It determines
// timeout syntax, EXPLAIN support, default schema, and error message shape.
type Family int

const (
	Postgres Family = iota
	Redshift
	MySQL
	DuckDB
)

func Parse(name string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "redshift":
		return Redshift, nil
	case "mysql":
		return MySQL, nil
	case "duckdb":
		return DuckDB, nil
	default:
		return 0, fmt.Errorf("unknown adapter %q", name)
	}
}

func (f Family) String() string {
	switch f {
	case Postgres:
		return "postgres"
	case Redshift:
		return "redshift"
	case MySQL:
		return "mysql"
	case DuckDB:
		return "duckdb"
	default:
		return "unknown"
	}
}

// DriverName returns the database/sql driver name for the family.
func (f Family) DriverName() string {
	switch f {
	case Postgres, Redshift:
		return "pgx"
	case MySQL:
		return "mysql"
	case DuckDB:
		return "duckdb"
	default:
		return ""
	}
}

// SupportsTimeout reports whether the dialect can enforce a statement-level
// timeout via a session control statement.
func (f Family) SupportsTimeout() bool {
	switch f {
	case Postgres, Redshift, MySQL:
		return true
	default:
		return false
	}
}

// TimeoutStatement returns the control statement that bounds execution time
// for subsequent statements on the same session. Callers must check
// SupportsTimeout first.
func (f Family) TimeoutStatement(ms int64) string {
	switch f {
	case Postgres, Redshift:
		return fmt.Sprintf("SET statement_timeout = %d", ms)
	case MySQL:
		return fmt.Sprintf("SET max_execution_time = %d", ms)
	default:
		return ""
	}
}

// TimeoutErrorSubstrings returns the fragments a backend error message is
// matched against to classify it as a timeout.
func (f Family) TimeoutErrorSubstrings() []string {
	switch f {
	case Postgres, Redshift:
		return []string{
			"canceling statement due to statement timeout",
			"canceled on user's request",
			"cancelled on user's request",
		}
	case MySQL:
		return []string{
			"max_execution_time exceeded",
			"maximum statement execution time exceeded",
		}
	default:
		return nil
	}
}

// DefaultSchema returns the schema queried when a data source does not
// configure one. Postgres and Redshift have a fixed well-known default;
// other dialects fall back to the configured database name.
func (f Family) DefaultSchema(database string) string {
	switch f {
	case Postgres, Redshift:
		return "public"
	default:
		return database
	}
}

// SupportsExplain reports whether the dialect produces a plan with a
// parseable cost figure.
func (f Family) SupportsExplain() bool {
	switch f {
	case Postgres, Redshift:
		return true
	default:
		return false
	}
}

func (f Family) ExplainStatement(statement string) string {
	return "EXPLAIN " + statement
}

// TablesStatement returns the metadata query listing table names in the
// given schemas, with placeholder-bound arguments in the dialect's
// placeholder style.
func (f Family) TablesStatement(schemas []string) (string, []any) {
	placeholders := make([]string, len(schemas))
	args := make([]any, len(schemas))
	for i, schema := range schemas {
		if f == MySQL || f == DuckDB {
			placeholders[i] = "?"
		} else {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		args[i] = schema
	}
	query := fmt.Sprintf(`
SELECT table_name
FROM information_schema.tables
WHERE table_schema IN (%s)
ORDER BY table_name ASC`, strings.Join(placeholders, ", "))
	return query, args
}

// StripErrorPrefix removes dialect boilerplate from a backend error message
// before it is surfaced to callers.
func (f Family) StripErrorPrefix(message string) string {
	switch f {
	case Postgres, Redshift:
		message = strings.TrimPrefix(message, "ERROR:  ")
		message = strings.TrimPrefix(message, "ERROR: ")
	case MySQL:
		if idx := strings.Index(message, ": "); idx > 0 && strings.HasPrefix(message, "Error ") {
			message = message[idx+2:]
		}
	}
	return strings.TrimSpace(message)
}
