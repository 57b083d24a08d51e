package redis

// Key prefixes for primary entity storage.
const (
	prefixDLQ   = "slackrelay:dlq:"
	prefixDedup = "slackrelay:dedup:" // + namespace + ":" + key
)

// Key for the sorted set index of DLQ entries by failure time.
const zDLQAll = "slackrelay:z:dlq:all"

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// dedupKey returns the key of a dedup record.
func dedupKey(namespace, key string) string {
	return prefixDedup + namespace + ":" + key
}
