package domain

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

type IndexingStatus string

const (
	StatusPending    IndexingStatus = "pending"
	StatusProcessing IndexingStatus = "processing"
	StatusSuccess    IndexingStatus = "success"
	StatusFailed     IndexingStatus = "failed"
)

type SourceLevel string

const (
	LevelHigh    SourceLevel = "High"
	LevelMedium  SourceLevel = "Medium"
	LevelLow     SourceLevel = "Low"
	LevelArchive SourceLevel = "Archive"
)

// ParseLevel accepts any casing of a known priority tier. Empty input maps to Medium.
func ParseLevel(raw string) (SourceLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return LevelMedium, nil
	case "high":
		return LevelHigh, nil
	case "medium":
		return LevelMedium, nil
	case "low":
		return LevelLow, nil
	case "archive":
		return LevelArchive, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse level", fmt.Errorf("unknown level %q", raw))
	}
}

// Source is one uploaded document tracked through ingestion.
// ChunksWritten and IndexedAt are set only while Status is StatusSuccess.
type Source struct {
	SourceID      string         `json:"source_id"`
	SourceName    string         `json:"source_name"`
	Level         SourceLevel    `json:"level"`
	Topic         string         `json:"topic"`
	DownloadURL   string         `json:"download_url"`
	StoragePath   string         `json:"storage_path"`
	MimeType      string         `json:"mime_type"`
	Status        IndexingStatus `json:"indexing_status"`
	ProgressNote  string         `json:"progress_note,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ChunksWritten *int           `json:"chunks_written,omitempty"`
	IndexedAt     *time.Time     `json:"indexed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// StatusUpdate is a full replacement of a source's lifecycle columns.
type StatusUpdate struct {
	Status        IndexingStatus
	ProgressNote  string
	ErrorMessage  string
	ChunksWritten *int
	IndexedAt     *time.Time
}

// Valid reports whether the update keeps the success/count/timestamp invariant.
func (u StatusUpdate) Valid() bool {
	hasResult := u.ChunksWritten != nil && u.IndexedAt != nil
	if u.Status == StatusSuccess {
		return hasResult
	}
	return u.ChunksWritten == nil && u.IndexedAt == nil
}

func (s *Source) Apply(u StatusUpdate, now time.Time) {
	s.Status = u.Status
	s.ProgressNote = u.ProgressNote
	s.ErrorMessage = u.ErrorMessage
	s.ChunksWritten = u.ChunksWritten
	s.IndexedAt = u.IndexedAt
	s.UpdatedAt = now
}

type ExtractionMode string

const (
	ExtractionStandard ExtractionMode = "standard"
	ExtractionDeep     ExtractionMode = "deep"
)

// ExtractionModeFor picks deep extraction for images and files that look like scans.
func ExtractionModeFor(mimeType, name string) ExtractionMode {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/") {
		return ExtractionDeep
	}
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	if strings.Contains(base, "scan") {
		return ExtractionDeep
	}
	return ExtractionStandard
}

// FileRef is the payload handed to the generative-document service.
type FileRef struct {
	Name     string
	MimeType string
	Data     []byte
}

type UploadRequest struct {
	Filename string
	MimeType string
	Level    SourceLevel
	Topic    string
	Body     io.Reader
}

type ProcessRequest struct {
	SourceID    string      `json:"source_id"`
	SourceName  string      `json:"source_name"`
	Level       SourceLevel `json:"level"`
	Topic       string      `json:"topic"`
	DownloadURL string      `json:"download_url"`
	// StoragePath is the object key to fetch bytes from; DownloadURL is used when it is empty.
	StoragePath string      `json:"storage_path,omitempty"`
	MimeType    string      `json:"mime_type"`
}

// ProcessResult is the structured outcome of one ingestion run.
type ProcessResult struct {
	SourceID      string `json:"source_id"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	Kind          string `json:"kind,omitempty"`
	ChunksWritten int    `json:"chunks_written"`
}
