package archivefmt

import (
	"time"

	"github.com/google/uuid"
)

// newUUID generates a new observation id's random suffix, or calls the
// test-supplied generator when gen is non-nil.
func newUUID(gen func() string) string {
	if gen != nil {
		return gen()
	}
	return uuid.NewString()
}

// nowTimestamp formats the current instant as an ISO-8601 UTC timestamp
// with microsecond precision, or calls the test-supplied clock when now is
// non-nil.
func nowTimestamp(now func() string) string {
	if now != nil {
		return now()
	}
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}
