package observability

import "sync"

// OnceReporter suppresses repeat log lines for recurring configuration
// problems. A missing webhook secret or unreachable cache should be reported
// once per process, not on every request.
//
// Initialized once at process start; safe for concurrent use.
type OnceReporter struct {
	mu     sync.Mutex
	logged map[string]struct{}
}

// NewOnceReporter creates an empty reporter
func NewOnceReporter() *OnceReporter {
	return &OnceReporter{logged: make(map[string]struct{})}
}

// MarkLogged records that key has been reported. Returns true if this call
// was the first for the key, so the caller knows whether to emit the log.
func (o *OnceReporter) MarkLogged(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, seen := o.logged[key]; seen {
		return false
	}
	o.logged[key] = struct{}{}
	return true
}

// HasLogged reports whether key was already reported
func (o *OnceReporter) HasLogged(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, seen := o.logged[key]
	return seen
}

// Reset clears all recorded keys. Intended for tests.
func (o *OnceReporter) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logged = make(map[string]struct{})
}

// WarnOnce logs a warning for key at most once per process lifetime
func (o *OnceReporter) WarnOnce(logger *Logger, key, message string) {
	if o.MarkLogged(key) {
		logger.WithField("once_key", key).Warn(message)
	}
}
