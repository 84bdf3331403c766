package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ivioje/globe-scholars/internal/shared/auth"
	"github.com/ivioje/globe-scholars/internal/shared/telemetry"
	"github.com/ivioje/globe-scholars/internal/works"
)

// StatsSource supplies upload aggregates for an account.
type StatsSource interface {
	UploaderStats(ctx context.Context, accountID string) (works.UploaderStats, error)
}

// Service contains business logic for accounts and sessions.
type Service struct {
	Repo   Repo
	Tokens *auth.Issuer
	Stats  StatsSource
	Now    func() time.Time
	// HashCost overrides the bcrypt cost; zero means bcrypt.DefaultCost.
	HashCost int
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Signup registers an account and returns a fresh token pair.
func (s *Service) Signup(ctx context.Context, in SignupInput) (Account, auth.TokenPair, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Account{}, auth.TokenPair{}, err
	}
	if in.Password != in.PasswordConfirm {
		return Account{}, auth.TokenPair{}, fmt.Errorf("passwords do not match: %w", ErrInvalidInput)
	}
	if err := validatePassword(in.Password); err != nil {
		return Account{}, auth.TokenPair{}, err
	}

	now := s.now()
	a := Account{
		ID:          uuid.NewString(),
		Email:       email,
		Username:    strings.TrimSpace(in.Username),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Bio:         strings.TrimSpace(in.Bio),
		Affiliation: strings.TrimSpace(in.Affiliation),
		Country:     strings.TrimSpace(in.Country),
		Website:     strings.TrimSpace(in.Website),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateProfile(a); err != nil {
		return Account{}, auth.TokenPair{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost())
	if err != nil {
		return Account{}, auth.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}
	a.PasswordHash = string(hash)

	if err := s.Repo.Create(ctx, a); err != nil {
		return Account{}, auth.TokenPair{}, err
	}
	pair, err := s.issue(a)
	if err != nil {
		return Account{}, auth.TokenPair{}, err
	}
	telemetry.Info("accounts.signup", map[string]any{"user_id": a.ID})
	return a, pair, nil
}

// Login checks email and password and returns a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (Account, auth.TokenPair, error) {
	a, err := s.Repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, auth.TokenPair{}, ErrInvalidCredentials
		}
		return Account{}, auth.TokenPair{}, err
	}
	if a.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return Account{}, auth.TokenPair{}, ErrInvalidCredentials
	}
	if !a.IsActive {
		return Account{}, auth.TokenPair{}, ErrInactive
	}
	pair, err := s.issue(a)
	if err != nil {
		return Account{}, auth.TokenPair{}, err
	}
	telemetry.Info("accounts.login", map[string]any{"user_id": a.ID})
	return a, pair, nil
}

// Logout blacklists the caller's refresh token.
func (s *Service) Logout(ctx context.Context, accountID, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return fmt.Errorf("refresh token is required: %w", ErrInvalidInput)
	}
	claims, err := s.Tokens.Verify(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return err
	}
	if claims.Subject != accountID {
		return auth.ErrInvalidToken
	}
	return s.Repo.RevokeToken(ctx, claims.ID, claims.Subject, expiry(claims))
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked so each refresh token works once; of two concurrent refreshes
// only the one whose revocation lands first gets a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.Tokens.Verify(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return auth.TokenPair{}, err
	}
	revoked, err := s.Repo.IsRevoked(ctx, claims.ID)
	if err != nil {
		return auth.TokenPair{}, err
	}
	if revoked {
		return auth.TokenPair{}, ErrTokenRevoked
	}
	a, err := s.Repo.GetByID(ctx, claims.Subject)
	if err != nil {
		return auth.TokenPair{}, err
	}
	if !a.IsActive {
		return auth.TokenPair{}, ErrInactive
	}
	if err := s.Repo.RevokeToken(ctx, claims.ID, claims.Subject, expiry(claims)); err != nil {
		return auth.TokenPair{}, err
	}
	return s.issue(a)
}

// LoginWithProvider finds the account for a verified external email or creates one.
func (s *Service) LoginWithProvider(ctx context.Context, email, givenName, familyName string) (Account, auth.TokenPair, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Account{}, auth.TokenPair{}, err
	}
	a, err := s.Repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		a, err = s.createFromProvider(ctx, email, givenName, familyName)
		if err != nil {
			return Account{}, auth.TokenPair{}, err
		}
	default:
		return Account{}, auth.TokenPair{}, err
	}
	if !a.IsActive {
		return Account{}, auth.TokenPair{}, ErrInactive
	}
	pair, err := s.issue(a)
	if err != nil {
		return Account{}, auth.TokenPair{}, err
	}
	return a, pair, nil
}

func (s *Service) createFromProvider(ctx context.Context, email, givenName, familyName string) (Account, error) {
	now := s.now()
	base := usernameFromEmail(email)
	for attempt := 0; attempt < 5; attempt++ {
		username := base
		if attempt > 0 {
			username = fmt.Sprintf("%s%d", truncate(base, maxUsernameLen-4), attempt+1)
		}
		a := Account{
			ID:        uuid.NewString(),
			Email:     email,
			Username:  username,
			FirstName: truncate(strings.TrimSpace(givenName), maxNameLen),
			LastName:  truncate(strings.TrimSpace(familyName), maxNameLen),
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := s.Repo.Create(ctx, a)
		if err == nil {
			telemetry.Info("accounts.signup", map[string]any{"user_id": a.ID, "provider": "google"})
			return a, nil
		}
		if !errors.Is(err, ErrUsernameTaken) {
			return Account{}, err
		}
	}
	return Account{}, ErrUsernameTaken
}

// Profile returns the caller's account and upload aggregates.
func (s *Service) Profile(ctx context.Context, accountID string) (Account, works.UploaderStats, error) {
	a, err := s.Repo.GetByID(ctx, accountID)
	if err != nil {
		return Account{}, works.UploaderStats{}, err
	}
	stats, err := s.stats(ctx, a.ID)
	if err != nil {
		return Account{}, works.UploaderStats{}, err
	}
	return a, stats, nil
}

// UpdateProfile applies a partial update to the caller's profile.
func (s *Service) UpdateProfile(ctx context.Context, accountID string, patch ProfilePatch) (Account, error) {
	a, err := s.Repo.GetByID(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&a.Username, patch.Username)
	apply(&a.FirstName, patch.FirstName)
	apply(&a.LastName, patch.LastName)
	apply(&a.Bio, patch.Bio)
	apply(&a.Affiliation, patch.Affiliation)
	apply(&a.Country, patch.Country)
	apply(&a.Website, patch.Website)
	if err := validateProfile(a); err != nil {
		return Account{}, err
	}
	a.UpdatedAt = s.now()
	if err := s.Repo.Update(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Scholars lists active non-staff accounts.
func (s *Service) Scholars(ctx context.Context, q ListQuery) ([]Account, error) {
	return s.Repo.ListScholars(ctx, q)
}

// Scholar returns an active account.
func (s *Service) Scholar(ctx context.Context, id string) (Account, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Account{}, ErrNotFound
	}
	a, err := s.Repo.GetByID(ctx, parsed.String())
	if err != nil {
		return Account{}, err
	}
	if !a.IsActive {
		return Account{}, ErrNotFound
	}
	return a, nil
}

// PublicProfile returns the email-free profile of an active account.
func (s *Service) PublicProfile(ctx context.Context, id string) (PublicProfile, error) {
	a, err := s.Scholar(ctx, id)
	if err != nil {
		return PublicProfile{}, err
	}
	stats, err := s.stats(ctx, a.ID)
	if err != nil {
		return PublicProfile{}, err
	}
	return toPublicProfile(a, stats), nil
}

// Uploaders resolves uploader summaries for work listings.
func (s *Service) Uploaders(ctx context.Context, ids []string) (map[string]works.Uploader, error) {
	found, err := s.Repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]works.Uploader, len(found))
	for id, a := range found {
		out[id] = works.Uploader{
			ID:          a.ID,
			Username:    a.Username,
			FullName:    a.FullName(),
			Affiliation: a.Affiliation,
		}
	}
	return out, nil
}

func (s *Service) stats(ctx context.Context, accountID string) (works.UploaderStats, error) {
	if s.Stats == nil {
		return works.UploaderStats{}, nil
	}
	return s.Stats.UploaderStats(ctx, accountID)
}

func (s *Service) issue(a Account) (auth.TokenPair, error) {
	if s.Tokens == nil {
		return auth.TokenPair{}, errors.New("token issuer not configured")
	}
	return s.Tokens.IssuePair(a.ID, a.Email, a.Username)
}

func (s *Service) hashCost() int {
	if s.HashCost > 0 {
		return s.HashCost
	}
	return bcrypt.DefaultCost
}

func toPublicProfile(a Account, stats works.UploaderStats) PublicProfile {
	return PublicProfile{
		ID:            a.ID,
		Username:      a.Username,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		DisplayName:   a.FullName(),
		Bio:           a.Bio,
		Affiliation:   a.Affiliation,
		Country:       a.Country,
		Website:       a.Website,
		MemberSince:   a.CreatedAt,
		UploadCount:   stats.Uploads,
		ReactionTotal: stats.Reactions,
	}
}

func expiry(c auth.Claims) time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Now().UTC()
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("enter a valid email address: %w", ErrInvalidInput)
	}
	at := strings.LastIndex(raw, "@")
	return raw[:at] + strings.ToLower(raw[at:]), nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, ErrInvalidInput)
	}
	numeric := true
	for _, r := range pw {
		if !unicode.IsDigit(r) {
			numeric = false
			break
		}
	}
	if numeric {
		return fmt.Errorf("password cannot be entirely numeric: %w", ErrInvalidInput)
	}
	return nil
}

func validateProfile(a Account) error {
	switch {
	case a.Username == "":
		return fmt.Errorf("username is required: %w", ErrInvalidInput)
	case len(a.Username) > maxUsernameLen:
		return fmt.Errorf("username must be at most %d characters: %w", maxUsernameLen, ErrInvalidInput)
	case strings.ContainsFunc(a.Username, unicode.IsSpace):
		return fmt.Errorf("username cannot contain spaces: %w", ErrInvalidInput)
	case len(a.FirstName) > maxNameLen || len(a.LastName) > maxNameLen:
		return fmt.Errorf("names must be at most %d characters: %w", maxNameLen, ErrInvalidInput)
	case len(a.Affiliation) > maxAffiliationLen:
		return fmt.Errorf("affiliation must be at most %d characters: %w", maxAffiliationLen, ErrInvalidInput)
	case len(a.Country) > maxCountryLen:
		return fmt.Errorf("country must be at most %d characters: %w", maxCountryLen, ErrInvalidInput)
	}
	if a.Website != "" {
		u, err := url.Parse(a.Website)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || len(a.Website) > maxWebsiteLen {
			return fmt.Errorf("enter a valid URL: %w", ErrInvalidInput)
		}
	}
	return nil
}

func usernameFromEmail(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	var b strings.Builder
	for _, r := range local {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	name := truncate(b.String(), maxUsernameLen)
	if name == "" {
		name = "scholar"
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
