package content

import (
	"io/fs"
	"time"
)

// Snapshot is immutable once handed to a Manager.
type Snapshot struct {
	FS       fs.FS
	Meta     Meta
	LoadedAt time.Time
}
