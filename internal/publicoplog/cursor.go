package publicoplog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golemproject/workerexec/internal/oplog"
)

// Cursor is an opaque pagination token for listing public oplog entries:
// resuming a scan needs both the next index to read from and the component
// version active at that point, since a component update changes how
// later entries should be interpreted.
type Cursor struct {
	NextOplogIndex         oplog.OplogIndex
	CurrentComponentVersion uint64
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d-%d", c.NextOplogIndex, c.CurrentComponentVersion)
}

// ParseCursor parses a cursor previously produced by Cursor.String.
func ParseCursor(s string) (Cursor, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("invalid oplog cursor %q", s)
	}
	idx, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid index in oplog cursor %q: %w", s, err)
	}
	version, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid component version in oplog cursor %q: %w", s, err)
	}
	return Cursor{NextOplogIndex: oplog.OplogIndex(idx), CurrentComponentVersion: version}, nil
}
