package redis

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var errEmptyKey = errors.New("redis: empty key component")

// keyspace namespaces every key written by one repository.
type keyspace string

func newKeyspace(prefix, fallback string) keyspace {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = fallback
	}
	return keyspace(prefix)
}

func (k keyspace) key(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errEmptyKey
	}
	return string(k) + ":" + id, nil
}

// Timestamps are stored as unix milliseconds so hash fields stay numeric.
func encodeTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeTime(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
