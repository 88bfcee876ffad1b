package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"teledrive/pkg/models"
)

// FileStore persists the tracker map as one flat JSON object. Every save
// rewrites the whole file through a temp file and an atomic rename, so a
// crash leaves either the previous or the new content on disk.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

// NewFileStore creates a store backed by filePath
func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

// Path of the backing file
func (store *FileStore) Path() string {
	return store.filePath
}

// Save writes records to disk
func (store *FileStore) Save(records map[string]models.TransferRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	dir := filepath.Dir(store.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create tracker directory: %w", err)
	}

	// Write to temporary file first
	tempFile := store.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create tracker file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to encode tracker: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to sync tracker file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close tracker file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempFile, store.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save tracker file: %w", err)
	}

	return nil
}

// Load reads the records from disk. A missing file is an empty map.
// A file that is not a JSON object returns ErrCorrupt; entries that fail
// to decode individually are reported through skipped and left out.
func (store *FileStore) Load() (records map[string]models.TransferRecord, skipped []string, err error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	data, err := os.ReadFile(store.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]models.TransferRecord{}, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to open tracker file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]models.TransferRecord{}, nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	records = make(map[string]models.TransferRecord, len(raw))
	for key, value := range raw {
		rec, ok := decodeRecord(value)
		if !ok {
			skipped = append(skipped, key)
			continue
		}
		records[key] = rec
	}
	return records, skipped, nil
}

// decodeRecord accepts the current object form and the older form where
// the value was just the sink file id.
func decodeRecord(value json.RawMessage) (models.TransferRecord, bool) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return models.TransferRecord{}, false
	}

	switch trimmed[0] {
	case '"':
		var sinkID string
		if err := json.Unmarshal(trimmed, &sinkID); err != nil || sinkID == "" {
			return models.TransferRecord{}, false
		}
		return models.TransferRecord{SinkID: sinkID}, true
	case '{':
		var rec models.TransferRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return models.TransferRecord{}, false
		}
		return rec, true
	default:
		return models.TransferRecord{}, false
	}
}
