package kv

// Schema versions for migration tracking
const (
	SchemaVersion1 = 1
	CurrentSchema  = SchemaVersion1
)

// SQL schema for version 1
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`

// GetSchema returns the SQL schema for the given version
func GetSchema(version int) string {
	switch version {
	case SchemaVersion1:
		return schemaV1
	default:
		return ""
	}
}
