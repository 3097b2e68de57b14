package ids

import (
	"strings"

	"github.com/segmentio/ksuid"
)

// New returns a sortable unique identifier.
func New() string {
	return ksuid.New().String()
}

// WithPrefix returns a new identifier tagged with prefix, e.g. "err_2Q...".
func WithPrefix(prefix string) string {
	return strings.TrimSuffix(prefix, "_") + "_" + New()
}
