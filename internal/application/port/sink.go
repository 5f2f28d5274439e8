package port

import "time"

// Sink is the output surface the console watcher writes to.
type Sink interface {
	WriteLive(line string) error
	WriteSnapshot(ts time.Time, line string) error
	NewLine() error
}
