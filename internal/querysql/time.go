package querysql

import (
	"fmt"
	"time"
)

// Time scans a system timestamp column from either engine: a time.Time
// from Postgres or integer microseconds from SQLite. NULL scans as the zero
// time.
type Time struct {
	time.Time
}

// Scan implements sql.Scanner.
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case int64:
		t.Time = time.UnixMicro(v).UTC()
	case float64:
		t.Time = time.UnixMicro(int64(v)).UTC()
	default:
		return fmt.Errorf("scan timestamp: unexpected %T", src)
	}
	return nil
}
