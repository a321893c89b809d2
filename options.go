package zim

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for debug events such as cluster cache hits
// and misses. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithClusterCache sets how many decoded clusters the archive keeps in its
// LRU cache. Set to 0 to disable caching. The default is
// DefaultClusterCacheSize.
func WithClusterCache(n int) Option {
	return func(a *Archive) {
		if n < 0 {
			n = 0
		}
		a.cacheSize = n
	}
}

// WithMaxClusterSize sets the limit on a decoded cluster body.
// Set to 0 to disable the limit. The default is DefaultMaxClusterSize.
func WithMaxClusterSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxClusterSize = limit
	}
}
