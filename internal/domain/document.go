package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// ============================================================
// Documents
// ============================================================

// Document is file metadata, optionally tied to a coachee. The file body
// lives in blob storage under StorageKey when one is configured.
type Document struct {
	ID          string    `json:"id"`
	CoacheeID   *int      `json:"coacheeId,omitempty"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	FileType    string    `json:"fileType"`
	ContentType string    `json:"contentType,omitempty"`
	StorageKey  string    `json:"storageKey,omitempty"`
	Shared      bool      `json:"shared"`
	Description string    `json:"description,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// DocumentFilter narrows a document listing.
type DocumentFilter struct {
	CoacheeID  *int
	Category   string
	SharedOnly bool
}

var fileTypesByExt = map[string]string{
	".pdf":  "pdf",
	".doc":  "document",
	".docx": "document",
	".odt":  "document",
	".rtf":  "document",
	".txt":  "text",
	".md":   "text",
	".xls":  "spreadsheet",
	".xlsx": "spreadsheet",
	".csv":  "spreadsheet",
	".ods":  "spreadsheet",
	".ppt":  "presentation",
	".pptx": "presentation",
	".odp":  "presentation",
	".jpg":  "image",
	".jpeg": "image",
	".png":  "image",
	".gif":  "image",
	".webp": "image",
	".svg":  "image",
	".mp3":  "audio",
	".wav":  "audio",
	".m4a":  "audio",
	".mp4":  "video",
	".mov":  "video",
	".webm": "video",
}

// InferFileType maps a file name's extension to a coarse type.
func InferFileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if t, ok := fileTypesByExt[ext]; ok {
		return t
	}
	return "other"
}
