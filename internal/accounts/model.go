package accounts

import (
	"strings"
	"time"
)

// Account is a registered scholar.
type Account struct {
	ID           string
	Email        string
	Username     string
	FirstName    string
	LastName     string
	Bio          string
	Affiliation  string
	Country      string
	Website      string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName is "first last", or the username when both are empty.
func (a Account) FullName() string {
	if name := strings.TrimSpace(a.FirstName + " " + a.LastName); name != "" {
		return name
	}
	return a.Username
}

// PublicProfile is the email-free view of an account with its upload aggregates.
type PublicProfile struct {
	ID            string
	Username      string
	FirstName     string
	LastName      string
	DisplayName   string
	Bio           string
	Affiliation   string
	Country       string
	Website       string
	MemberSince   time.Time
	UploadCount   int
	ReactionTotal int
}

// ListQuery filters and orders the scholar directory.
type ListQuery struct {
	Search   string
	Ordering string
	Limit    int
	Offset   int
}

// SignupInput is the registration payload.
type SignupInput struct {
	Email           string
	Username        string
	FirstName       string
	LastName        string
	Bio             string
	Affiliation     string
	Country         string
	Website         string
	Password        string
	PasswordConfirm string
}

// ProfilePatch carries optional profile updates; nil fields are left alone.
type ProfilePatch struct {
	Username    *string
	FirstName   *string
	LastName    *string
	Bio         *string
	Affiliation *string
	Country     *string
	Website     *string
}

const (
	maxUsernameLen    = 50
	maxNameLen        = 50
	maxAffiliationLen = 200
	maxCountryLen     = 100
	maxWebsiteLen     = 200
	minPasswordLen    = 8
)
