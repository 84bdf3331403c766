package export

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivioje/globe-scholars/internal/accounts"
	"github.com/ivioje/globe-scholars/internal/shared/pdfdoc"
)

type stubProfiles map[string]accounts.PublicProfile

func (s stubProfiles) PublicProfile(ctx context.Context, id string) (accounts.PublicProfile, error) {
	p, ok := s[id]
	if !ok {
		return accounts.PublicProfile{}, accounts.ErrNotFound
	}
	return p, nil
}

func sampleProfile() accounts.PublicProfile {
	return accounts.PublicProfile{
		ID:          "acct-1",
		Username:    "mtharp",
		DisplayName: "Marie Tharp",
		Bio:         "Mapped the ocean floor.",
		Affiliation: "Lamont Geological Observatory",
		Country:     "USA",
		MemberSince: time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC),
		UploadCount: 3,
	}
}

func TestRenderProfileContents(t *testing.T) {
	pdf, err := RenderProfile(sampleProfile())
	require.NoError(t, err)

	_, err = pdfdoc.Validate(pdf)
	require.NoError(t, err)
	text, err := pdfdoc.Text(pdf)
	require.NoError(t, err)

	for _, want := range []string{"Marie Tharp", "mtharp", "Lamont Geological Observatory", "About", "March 2024", "3 scholarly works uploaded"} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, "Website")
}

func TestUploadsLine(t *testing.T) {
	assert.Equal(t, "0 scholarly works uploaded", uploadsLine(0))
	assert.Equal(t, "1 scholarly work uploaded", uploadsLine(1))
}

func TestExportEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(stubProfiles{"acct-1": sampleProfile()}).RegisterRoutes(router.Group("/api/v1"))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/scholars/acct-1/export", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=mtharp_profile.pdf`, resp.Header().Get("Content-Disposition"))
	assert.True(t, pdfdoc.HasMagic(resp.Body.Bytes()))

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/scholars/ghost/export", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
