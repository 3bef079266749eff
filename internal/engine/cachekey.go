package engine

import (
	"crypto/md5"
	"encoding/hex"
)

// Cache keys are versioned paths; bumping cacheVersion invalidates every
// entry written under the previous format.
const (
	cacheKeyPrefix = "blazer"
	cacheVersion   = "v4"
)

// StatementKey derives the statement-cache key for a data source and the
// exact statement text. The statement is hashed byte-for-byte: textually
// different but semantically equal statements get different keys.
func StatementKey(dataSourceID, statement string) string {
	digest := md5.Sum([]byte(statement))
	return cacheKeyPrefix + "/" + cacheVersion + "/statement/" + dataSourceID + "/" + hex.EncodeToString(digest[:])
}

// RunKey derives the run-cache key for an opaque run identifier.
func RunKey(runID string) string {
	return cacheKeyPrefix + "/" + cacheVersion + "/run/" + runID
}
