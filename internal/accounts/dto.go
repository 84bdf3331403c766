package accounts

import (
	"time"

	"github.com/ivioje/globe-scholars/internal/shared/auth"
	"github.com/ivioje/globe-scholars/internal/works"
)

// ProfileResponse is the owner's view of an account.
type ProfileResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	FullName       string    `json:"fullName"`
	Bio            string    `json:"bio"`
	Affiliation    string    `json:"affiliation"`
	Country        string    `json:"country"`
	Website        string    `json:"website"`
	CreatedAt      time.Time `json:"createdAt"`
	UploadCount    int       `json:"uploadCount"`
	TotalReactions int       `json:"totalReactions"`
}

// PublicProfileResponse is the email-free view shown to everyone.
type PublicProfileResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	FullName    string    `json:"fullName"`
	Bio         string    `json:"bio"`
	Affiliation string    `json:"affiliation"`
	Country     string    `json:"country"`
	Website     string    `json:"website"`
	CreatedAt   time.Time `json:"createdAt"`
	UploadCount int       `json:"uploadCount"`
}

// SessionResponse is returned by signup and login.
type SessionResponse struct {
	Message string          `json:"message"`
	User    ProfileResponse `json:"user"`
	Tokens  auth.TokenPair  `json:"tokens"`
}

func toProfileResponse(a Account, stats works.UploaderStats) ProfileResponse {
	return ProfileResponse{
		ID:             a.ID,
		Email:          a.Email,
		Username:       a.Username,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		FullName:       a.FullName(),
		Bio:            a.Bio,
		Affiliation:    a.Affiliation,
		Country:        a.Country,
		Website:        a.Website,
		CreatedAt:      a.CreatedAt,
		UploadCount:    stats.Uploads,
		TotalReactions: stats.Reactions,
	}
}

func toPublicResponse(p PublicProfile) PublicProfileResponse {
	return PublicProfileResponse{
		ID:          p.ID,
		Username:    p.Username,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		FullName:    p.DisplayName,
		Bio:         p.Bio,
		Affiliation: p.Affiliation,
		Country:     p.Country,
		Website:     p.Website,
		CreatedAt:   p.MemberSince,
		UploadCount: p.UploadCount,
	}
}
