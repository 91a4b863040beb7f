package store

import "errors"

// Reserved keys. Every other key in the bucket is the decimal ASCII form
// of the counter value observed at insertion time.
const (
	KeyCounter  = "__counter__"
	KeyPostData = "post_data"
)

// ErrNotFound is returned by Get/ByKey when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// Store is the request log store spec.md §3 describes: a persistent
// keyed mapping string -> opaque bytes, written to by POST handling
// (§4.5) and otherwise read-only from this daemon's point of view.
type Store interface {
	// Put appends body under the next counter key, advances the
	// counter, and mirrors body under KeyPostData. It returns the key
	// the body was written under.
	Put(body []byte) (string, error)

	// Get returns the bytes stored under key, including reserved keys.
	Get(key string) ([]byte, error)

	// ByKey is an alias of Get kept for callers that want to make clear
	// they mean a non-reserved numeric key; it does not reject reserved
	// keys, since the store has no notion of a numeric-only key space
	// beyond convention.
	ByKey(key string) ([]byte, error)

	// Latest returns the most recently Put body, equivalent to
	// Get(KeyPostData), and reports false if nothing has been Put yet.
	Latest() ([]byte, bool, error)

	// List returns every non-reserved entry, keyed by its decimal
	// counter string.
	List() (map[string][]byte, error)

	// Close releases the underlying database handle.
	Close() error
}
