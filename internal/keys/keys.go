package keys

// Package keys centralizes Redis key construction for the report archive.
// It is kept in internal to avoid leaking key formats to public API.

// Record returns the key holding one archived record's JSON.
func Record(ns, id string) string { return "aiqueue:{" + ns + "}:record:" + id }

// Finding returns the ZSET key indexing a finding's record ids by creation time.
func Finding(ns, findingID string) string { return "aiqueue:{" + ns + "}:finding:" + findingID }

// Archive holds all precomputed keys for a namespace to avoid repeated concatenations.
type Archive struct {
	// RecordPrefix is prepended to a record id.
	RecordPrefix string
	// FindingPrefix is prepended to a finding id.
	FindingPrefix string
	// Expiry is a ZSET of record ids scored by absolute expiration time in ms.
	Expiry string
	// Events is the pub/sub channel for lifecycle events.
	Events string
}

// For returns a set of precomputed keys for the provided namespace.
func For(ns string) Archive {
	prefix := "aiqueue:{" + ns + "}:"
	return Archive{
		RecordPrefix:  prefix + "record:",
		FindingPrefix: prefix + "finding:",
		Expiry:        prefix + "expiry",
		Events:        prefix + "events",
	}
}

// Record returns the record key for id.
func (a Archive) Record(id string) string { return a.RecordPrefix + id }

// Finding returns the finding index key for findingID.
func (a Archive) Finding(findingID string) string { return a.FindingPrefix + findingID }
