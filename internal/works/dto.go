package works

import (
	"context"
	"strings"
	"time"
)

// UploaderDirectory resolves uploader summaries for a batch of account IDs.
type UploaderDirectory interface {
	Uploaders(ctx context.Context, ids []string) (map[string]Uploader, error)
}

// UploaderResponse is the nested uploader summary on work payloads.
type UploaderResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	FullName    string `json:"fullName"`
	Affiliation string `json:"affiliation"`
}

// ListItemResponse is the lightweight work shape used by listings.
type ListItemResponse struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Authors          string           `json:"authors"`
	PublicationYear  int              `json:"publicationYear"`
	FileType         FileType         `json:"fileType"`
	FileSize         int64            `json:"fileSize"`
	UploadedAt       time.Time        `json:"uploadedAt"`
	Uploader         UploaderResponse `json:"uploader"`
	ReactionCount    int              `json:"reactionCount"`
	UserHasReacted   bool             `json:"userHasReacted"`
	ConversionStatus ConversionStatus `json:"conversionStatus"`
}

// DetailResponse is the full work shape.
type DetailResponse struct {
	ID                 string           `json:"id"`
	Title              string           `json:"title"`
	Authors            string           `json:"authors"`
	AuthorList         []string         `json:"authorList"`
	PublicationYear    int              `json:"publicationYear"`
	Description        string           `json:"description"`
	Keywords           string           `json:"keywords"`
	FileType           FileType         `json:"fileType"`
	FileSize           int64            `json:"fileSize"`
	OriginalFilename   string           `json:"originalFilename"`
	Uploader           UploaderResponse `json:"uploader"`
	UploadedAt         time.Time        `json:"uploadedAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
	ReactionCount      int              `json:"reactionCount"`
	UserHasReacted     bool             `json:"userHasReacted"`
	DownloadURL        string           `json:"downloadUrl"`
	ConversionStatus   ConversionStatus `json:"conversionStatus"`
	ConversionProgress int              `json:"conversionProgress"`
}

// ReactionResponse is returned by the react endpoint.
type ReactionResponse struct {
	Message       string `json:"message"`
	ReactionCount int    `json:"reactionCount"`
}

func toUploaderResponse(id string, u Uploader) UploaderResponse {
	if u.ID == "" {
		u.ID = id
	}
	return UploaderResponse{
		ID:          u.ID,
		Username:    u.Username,
		FullName:    u.FullName,
		Affiliation: u.Affiliation,
	}
}

func toListItem(w Work, u Uploader, r ReactionInfo) ListItemResponse {
	return ListItemResponse{
		ID:               w.ID,
		Title:            w.Title,
		Authors:          w.Authors,
		PublicationYear:  w.PublicationYear,
		FileType:         w.FileType,
		FileSize:         w.FileSize,
		UploadedAt:       w.UploadedAt,
		Uploader:         toUploaderResponse(w.UploaderID, u),
		ReactionCount:    r.Count,
		UserHasReacted:   r.HasReacted,
		ConversionStatus: w.ConversionStatus,
	}
}

func toDetail(w Work, u Uploader, r ReactionInfo, baseURL string) DetailResponse {
	return DetailResponse{
		ID:                 w.ID,
		Title:              w.Title,
		Authors:            w.Authors,
		AuthorList:         w.AuthorList(),
		PublicationYear:    w.PublicationYear,
		Description:        w.Description,
		Keywords:           w.Keywords,
		FileType:           w.FileType,
		FileSize:           w.FileSize,
		OriginalFilename:   w.OriginalFilename,
		Uploader:           toUploaderResponse(w.UploaderID, u),
		UploadedAt:         w.UploadedAt,
		UpdatedAt:          w.UpdatedAt,
		ReactionCount:      r.Count,
		UserHasReacted:     r.HasReacted,
		DownloadURL:        downloadURL(baseURL, w.ID),
		ConversionStatus:   w.ConversionStatus,
		ConversionProgress: w.ConversionProgress,
	}
}

func downloadURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/api/v1/works/" + id + "/download"
}

func reactionMessage(o ReactionOutcome) string {
	if o == ReactionRemoved {
		return "Reaction removed"
	}
	return "Reaction added"
}
