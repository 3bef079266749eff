package engine

import (
	"context"
	"regexp"
	"strconv"
)

// Plan lines look like "Seq Scan on users  (cost=0.00..458.00 rows=10000 ...)".
// The second figure is the total cost.
var costPattern = regexp.MustCompile(`cost=\d+\.\d+\.\.(\d+\.\d+) `)

// estimateCost runs the dialect's EXPLAIN statement and extracts the total
// cost from the plan output. Best-effort: any failure yields nil and must
// never affect the primary execution path.
func estimateCost(ctx context.Context, ds *DataSource, statement string) *float64 {
	if !ds.family.SupportsExplain() {
		return nil
	}
	db := ds.DB()
	if db == nil {
		return nil
	}

	rows, err := db.QueryContext(ctx, ds.family.ExplainStatement(statement))
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil
		}
		if match := costPattern.FindStringSubmatch(line); match != nil {
			cost, err := strconv.ParseFloat(match[1], 64)
			if err != nil {
				return nil
			}
			return &cost
		}
	}
	return nil
}
