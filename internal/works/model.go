package works

import (
	"io"
	"path"
	"strings"
	"time"
)

// FileType is the declared kind of the uploaded artifact.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
)

// ConversionStatus tracks the DOCX to PDF lifecycle of a work.
type ConversionStatus string

const (
	StatusPending    ConversionStatus = "pending"
	StatusProcessing ConversionStatus = "processing"
	StatusCompleted  ConversionStatus = "completed"
	StatusFailed     ConversionStatus = "failed"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	// MaxFileSize is the upload ceiling for original artifacts.
	MaxFileSize int64 = 20 << 20

	maxTitleLen    = 500
	maxAuthorsLen  = 500
	maxKeywordsLen = 500
	maxFilenameLen = 255
	minYear        = 1000
)

// Work is the metadata and file-location record of one uploaded scholarly document.
type Work struct {
	ID                 string
	Title              string
	Authors            string
	PublicationYear    int
	Description        string
	Keywords           string
	OriginalKey        string
	OriginalFilename   string
	FileSize           int64
	FileType           FileType
	ConvertedKey       string
	ConversionStatus   ConversionStatus
	ConversionProgress int
	UploaderID         string
	UploadedAt         time.Time
	UpdatedAt          time.Time
}

// AuthorList splits the comma-separated authors field.
func (w Work) AuthorList() []string {
	out := []string{}
	for _, a := range strings.Split(w.Authors, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// HasConverted reports whether a derived PDF is recorded for the work.
func (w Work) HasConverted() bool {
	return w.ConvertedKey != ""
}

// FileTypeForContentType maps an accepted declared content type to a FileType.
func FileTypeForContentType(contentType string) (FileType, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case ContentTypePDF:
		return FileTypePDF, true
	case ContentTypeDOCX:
		return FileTypeDOCX, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type served for the original artifact.
func (t FileType) ContentType() string {
	if t == FileTypeDOCX {
		return ContentTypeDOCX
	}
	return ContentTypePDF
}

// InitialStatus is the conversion status a fresh upload of this type starts in.
func (t FileType) InitialStatus() (ConversionStatus, int) {
	if t == FileTypeDOCX {
		return StatusPending, 0
	}
	return StatusCompleted, 100
}

// ConvertedKey is the storage key of one derived PDF upload for a work. Each
// report gets its own attempt so a rejected report never clobbers a stored file.
func ConvertedKey(workID, attempt string) string {
	return path.Join("converted", workID, attempt+".pdf")
}

// TrashKey is where an artifact is staged while its record is being deleted.
func TrashKey(workID, key string) string {
	return path.Join(".trash", workID, path.Base(key))
}

func pdfFilename(original string) string {
	base := original
	if ext := path.Ext(original); ext != "" {
		base = strings.TrimSuffix(original, ext)
	}
	if base == "" {
		base = "document"
	}
	return base + ".pdf"
}

// CreateInput carries the metadata and file of a new upload.
type CreateInput struct {
	Title               string
	Authors             string
	PublicationYear     int
	Description         string
	Keywords            string
	UploaderID          string
	FileName            string
	DeclaredContentType string
	Size                int64
	Body                io.Reader
}

// ListQuery filters and orders work listings.
type ListQuery struct {
	PublicationYear int
	FileType        FileType
	Author          string
	Search          string
	Ordering        string
	Limit           int
	Offset          int
}

// ReactionOutcome says what a toggle did.
type ReactionOutcome string

const (
	ReactionAdded   ReactionOutcome = "added"
	ReactionRemoved ReactionOutcome = "removed"
)

// ReactionResult is returned by a toggle.
type ReactionResult struct {
	Outcome ReactionOutcome
	Count   int
}

// ReactionInfo is the reaction summary of a work for one viewer.
type ReactionInfo struct {
	Count      int
	HasReacted bool
}

// UploaderStats aggregates an account's uploads.
type UploaderStats struct {
	Uploads   int
	Reactions int
}

// Uploader is the public summary of the account that uploaded a work.
type Uploader struct {
	ID          string
	Username    string
	FullName    string
	Affiliation string
}
