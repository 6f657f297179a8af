package storage

import (
	"fmt"
	"time"
)

// DatedKey builds the object key for a stored artifact, partitioned by
// capture date: prefix/YYYY/MM/DD/filename
func DatedKey(prefix, filename string, when time.Time) string {
	return fmt.Sprintf("%s/%s/%s", prefix, when.UTC().Format("2006/01/02"), filename)
}
