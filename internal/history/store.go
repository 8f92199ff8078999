// Package history keeps readings of previous probe runs.
package history

import (
	"fmt"
	"strings"

	"github.com/plgd-dev/cinfo/internal/mote"
)

// Store records readings and returns the latest one recorded for a mote.
type Store interface {
	Close() error
	Record(r mote.Reading) error
	Last(moteAddr string) (mote.Reading, bool, error)
}

// NewStore creates the configured history backend.
func NewStore(typ, path string) (Store, error) {
	switch strings.TrimSpace(strings.ToLower(typ)) {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt history requires a path")
		}
		return openBolt(path)
	default:
		return nil, fmt.Errorf("unsupported history type %q", typ)
	}
}

type noopStore struct{}

func (noopStore) Close() error {
	return nil
}

func (noopStore) Record(mote.Reading) error {
	return nil
}

func (noopStore) Last(string) (mote.Reading, bool, error) {
	return mote.Reading{}, false, nil
}
