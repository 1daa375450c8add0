package storage

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

const lockTimeout = 5 * time.Second

// SaveCatalog writes videos to path as an indented JSON array, replacing any
// existing file. Thumbnail references are written as-is (cache:// URLs).
func SaveCatalog(path string, videos []VideoRecord) error {
	if videos == nil {
		videos = []VideoRecord{}
	}

	lock := NewFileLock(path)
	if err := lock.Lock(lockTimeout); err != nil {
		return err
	}
	defer lock.Unlock()

	writer, err := NewAtomicWriter(path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "catalog", Path: path, Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(videos); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "catalog", Path: path, Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "catalog", Path: path, Err: err}
	}
	return nil
}

// LoadCatalog reads a catalog written by SaveCatalog. A missing file is a
// negative result (found == false), not an error.
func LoadCatalog(path string) (videos []VideoRecord, found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &StorageError{Op: "read", Entity: "catalog", Path: path, Err: err}
	}

	if err := json.Unmarshal(data, &videos); err != nil {
		return nil, true, &StorageError{Op: "read", Entity: "catalog", Path: path, Err: ErrStorageCorrupt}
	}
	if videos == nil {
		videos = []VideoRecord{}
	}
	return videos, true, nil
}
