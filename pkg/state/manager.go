package state

import (
	"errors"

	"teledrive/pkg/models"
)

// ErrCorrupt is returned by a Store whose backing data cannot be parsed at all
var ErrCorrupt = errors.New("tracker state is corrupt")

// Store persists the full tracker map. Implementations rewrite the whole
// map on every Save.
type Store interface {
	Load() (records map[string]models.TransferRecord, skipped []string, err error)
	Save(records map[string]models.TransferRecord) error
}
