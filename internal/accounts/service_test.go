package accounts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ivioje/globe-scholars/internal/shared/auth"
	"github.com/ivioje/globe-scholars/internal/works"
)

type stubStats map[string]works.UploaderStats

func (s stubStats) UploaderStats(ctx context.Context, accountID string) (works.UploaderStats, error) {
	return s[accountID], nil
}

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	issuer, err := auth.NewIssuer("test-secret", "dev", time.Hour, 24*time.Hour)
	require.NoError(t, err)
	repo := NewMemoryRepo()
	return &Service{
		Repo:     repo,
		Tokens:   issuer,
		Stats:    stubStats{},
		Now:      func() time.Time { return fixedNow },
		HashCost: bcrypt.MinCost,
	}, repo
}

func validSignup() SignupInput {
	return SignupInput{
		Email:           "Ada@Example.COM",
		Username:        "ada",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Affiliation:     "Analytical Society",
		Country:         "UK",
		Website:         "https://ada.example.com",
		Password:        "engine-notes",
		PasswordConfirm: "engine-notes",
	}
}

func TestSignupCreatesAccountAndTokens(t *testing.T) {
	svc, repo := newTestService(t)

	a, pair, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	assert.Equal(t, "Ada@example.com", a.Email)
	assert.True(t, a.IsActive)
	assert.NotEqual(t, "engine-notes", a.PasswordHash)
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)

	stored, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, stored)

	claims, err := svc.Tokens.Verify(pair.Access, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, a.ID, claims.Subject)
}

func TestSignupValidation(t *testing.T) {
	cases := map[string]func(in *SignupInput){
		"bad email":          func(in *SignupInput) { in.Email = "not-an-email" },
		"password mismatch":  func(in *SignupInput) { in.PasswordConfirm = "something-else" },
		"short password":     func(in *SignupInput) { in.Password, in.PasswordConfirm = "abc", "abc" },
		"numeric password":   func(in *SignupInput) { in.Password, in.PasswordConfirm = "12345678", "12345678" },
		"missing username":   func(in *SignupInput) { in.Username = " " },
		"username has space": func(in *SignupInput) { in.Username = "ada l" },
		"bad website":        func(in *SignupInput) { in.Website = "ftp://ada" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(t)
			in := validSignup()
			mutate(&in)
			_, _, err := svc.Signup(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestSignupRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	in := validSignup()
	in.Email = "ada@example.com"
	in.Username = "other"
	_, _, err = svc.Signup(context.Background(), in)
	assert.ErrorIs(t, err, ErrEmailTaken)

	in = validSignup()
	in.Email = "someone@example.com"
	_, _, err = svc.Signup(context.Background(), in)
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestLogin(t *testing.T) {
	svc, repo := newTestService(t)
	a, _, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	got, pair, err := svc.Login(context.Background(), "ada@EXAMPLE.com", "engine-notes")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.NotEmpty(t, pair.Access)

	_, _, err = svc.Login(context.Background(), "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "nobody@example.com", "engine-notes")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	a.IsActive = false
	repo.data[a.ID] = a
	_, _, err = svc.Login(context.Background(), "ada@example.com", "engine-notes")
	assert.ErrorIs(t, err, ErrInactive)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newTestService(t)
	_, pair, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	next, err := svc.Refresh(context.Background(), pair.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, next.Access)
	assert.NotEqual(t, pair.RefreshID, next.RefreshID)

	_, err = svc.Refresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = svc.Refresh(context.Background(), pair.Access)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestConcurrentRefreshIssuesOnePair(t *testing.T) {
	svc, _ := newTestService(t)
	_, pair, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	const callers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  int
		revoked int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), pair.Refresh)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case errors.Is(err, ErrTokenRevoked):
				revoked++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, issued)
	assert.Equal(t, callers-1, revoked)
}

// staleRevocationRepo reports every token as live, as a reader racing
// another refresh would.
type staleRevocationRepo struct {
	*MemoryRepo
}

func (staleRevocationRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return false, nil
}

func TestRefreshLosingRevocationRaceFails(t *testing.T) {
	svc, repo := newTestService(t)
	_, pair, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	svc.Repo = staleRevocationRepo{MemoryRepo: repo}

	_, err = svc.Refresh(context.Background(), pair.Refresh)
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	a, pair, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Logout(context.Background(), "someone-else", pair.Refresh), auth.ErrInvalidToken)
	assert.ErrorIs(t, svc.Logout(context.Background(), a.ID, ""), ErrInvalidInput)

	require.NoError(t, svc.Logout(context.Background(), a.ID, pair.Refresh))
	_, err = svc.Refresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.ErrorIs(t, svc.Logout(context.Background(), a.ID, pair.Refresh), ErrTokenRevoked)
}

func TestLoginWithProviderCreatesThenReuses(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.Signup(context.Background(), SignupInput{
		Email:           "grace@navy.example",
		Username:        "grace",
		Password:        "cobol-rules",
		PasswordConfirm: "cobol-rules",
	})
	require.NoError(t, err)

	first, pair, err := svc.LoginWithProvider(context.Background(), "grace@gmail.example", "Grace", "Hopper")
	require.NoError(t, err)
	assert.Equal(t, "grace2", first.Username, "taken username gets a suffix")
	assert.Empty(t, first.PasswordHash)
	assert.NotEmpty(t, pair.Access)

	again, _, err := svc.LoginWithProvider(context.Background(), "grace@gmail.example", "Grace", "Hopper")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = svc.Login(context.Background(), "grace@gmail.example", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "provider accounts have no password")
}

func TestUpdateProfileAppliesPatch(t *testing.T) {
	svc, _ := newTestService(t)
	a, _, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	bio := "  First programmer.  "
	updated, err := svc.UpdateProfile(context.Background(), a.ID, ProfilePatch{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "First programmer.", updated.Bio)
	assert.Equal(t, a.Affiliation, updated.Affiliation)

	bad := "not a url"
	_, err = svc.UpdateProfile(context.Background(), a.ID, ProfilePatch{Website: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.UpdateProfile(context.Background(), "missing", ProfilePatch{Bio: &bio})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublicProfileHidesInactive(t *testing.T) {
	svc, repo := newTestService(t)
	a, _, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	svc.Stats = stubStats{a.ID: {Uploads: 3, Reactions: 7}}

	p, err := svc.PublicProfile(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.DisplayName)
	assert.Equal(t, 3, p.UploadCount)
	assert.Equal(t, 7, p.ReactionTotal)
	assert.Equal(t, fixedNow, p.MemberSince)

	a.IsActive = false
	repo.data[a.ID] = a
	_, err = svc.PublicProfile(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMalformedScholarIDIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	a, _, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	for _, id := range []string{"abc", "", a.ID + "0", "1 or 1=1"} {
		_, err := svc.Scholar(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound, "scholar %q", id)
		_, err = svc.PublicProfile(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound, "profile %q", id)
	}

	got, err := svc.Scholar(context.Background(), " "+a.ID+" ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestUploadersResolvesKnownIDs(t *testing.T) {
	svc, _ := newTestService(t)
	a, _, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	got, err := svc.Uploaders(context.Background(), []string{a.ID, "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, works.Uploader{ID: a.ID, Username: "ada", FullName: "Ada Lovelace", Affiliation: "Analytical Society"}, got[a.ID])
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "ada.l", usernameFromEmail("ada.l@example.com"))
	assert.Equal(t, "scholar", usernameFromEmail("+++@example.com"))
}

func TestIssueWithoutIssuerFails(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Tokens = nil
	_, _, err := svc.Signup(context.Background(), validSignup())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidInput))
}
