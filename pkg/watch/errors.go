package watch

import "errors"

// ErrWatchedGone means the publisher closed the region and will never
// write again. Terminal for the region: callers should drop the watcher.
var ErrWatchedGone = errors.New("watched value is gone")
