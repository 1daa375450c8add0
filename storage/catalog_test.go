package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func sampleCatalog() []VideoRecord {
	return []VideoRecord{
		{
			ID:           "vid1",
			Title:        "First",
			Description:  "line one\nline two",
			ThumbnailURL: "cache://vid1_medium_320_180.jpg",
			Thumbnails: map[string]Thumbnail{
				"medium":  {URL: "cache://vid1_medium_320_180.jpg", Width: 320, Height: 180},
				"default": {URL: "cache://vid1_default_120_90.jpg", Width: 120, Height: 90},
			},
			PublishedAt:      "2024-01-02T03:04:05Z",
			PrivacyStatus:    "public",
			CategoryID:       "22",
			Duration:         "PT4M13S",
			UploadStatus:     "processed",
			ProcessingStatus: "succeeded",
			Statistics:       &Statistics{ViewCount: 12, LikeCount: 3, CommentCount: 1},
		},
		{
			ID:                 "vid2",
			Title:              "Second",
			Thumbnails:         map[string]Thumbnail{},
			PrivacyStatus:      "private",
			CategoryID:         "10",
			ProcessingStatus:   "processing",
			ProcessingProgress: &ProcessingProgress{PartsTotal: 100, PartsProcessed: 40, TimeLeftMs: 9000},
		},
	}
}

func TestCatalog_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultBackupFile)
	want := sampleCatalog()

	if err := SaveCatalog(path, want); err != nil {
		t.Fatalf("SaveCatalog() error = %v", err)
	}

	got, found, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if !found {
		t.Fatal("LoadCatalog() found = false, want true")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadCatalog() = %+v, want %+v", got, want)
	}
}

func TestSaveCatalog_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := SaveCatalog(path, sampleCatalog()); err != nil {
		t.Fatalf("SaveCatalog() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "[\n  {") {
		t.Errorf("expected indented JSON array, got %q", text[:20])
	}
	if !strings.Contains(text, `"view_count": "12"`) {
		t.Error("statistics counters should be encoded as strings")
	}
	if strings.Contains(text, `"duration": ""`) {
		t.Error("empty optional fields should be omitted")
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file should be removed after save")
	}
}

func TestSaveCatalog_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := SaveCatalog(path, sampleCatalog()); err != nil {
		t.Fatal(err)
	}
	if err := SaveCatalog(path, nil); err != nil {
		t.Fatal(err)
	}

	got, found, err := LoadCatalog(path)
	if err != nil || !found {
		t.Fatalf("LoadCatalog() = found %v, err %v", found, err)
	}
	if len(got) != 0 {
		t.Errorf("len(got) = %d, want 0", len(got))
	}
}

func TestLoadCatalog_NotFound(t *testing.T) {
	videos, found, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v, want nil", err)
	}
	if found {
		t.Error("found = true, want false")
	}
	if videos != nil {
		t.Errorf("videos = %v, want nil", videos)
	}
}

func TestLoadCatalog_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, found, err := LoadCatalog(path)
	if !found {
		t.Error("found = false, want true for an existing file")
	}
	if !errors.Is(err, ErrStorageCorrupt) {
		t.Errorf("error = %v, want ErrStorageCorrupt", err)
	}
	var storErr *StorageError
	if !errors.As(err, &storErr) {
		t.Fatalf("error type = %T, want *StorageError", err)
	}
	if storErr.Entity != "catalog" || storErr.Path != path {
		t.Errorf("StorageError = %+v", storErr)
	}
}
