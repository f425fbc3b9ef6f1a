package mockapi

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sabahroadcare/roadcare/auth"
	"github.com/sabahroadcare/roadcare/client"
	"github.com/sabahroadcare/roadcare/config"
	"github.com/sabahroadcare/roadcare/draft"
	"github.com/sabahroadcare/roadcare/form"
	"github.com/sabahroadcare/roadcare/localstore"
	"github.com/sabahroadcare/roadcare/location"
)

func testServer(t *testing.T) (*Server, *httptest.Server, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		RequestTimeoutSecs: 5,
		UploadDir:          filepath.Join(dir, "uploads"),
		JWTSecret:          "test-secret",
		MockUserEmail:      "citizen@example.com",
		MockUserPassword:   "tarmac-and-rain",
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "mock.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := NewWithDB(cfg, db)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	cfg.APIBaseURL = ts.URL
	return s, ts, cfg
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 120, G: uint8(40 * x), B: uint8(40 * y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// Walks the whole citizen workflow against the mock backend: login, fill the
// form, submit, then read the report back from history.
func TestReportWorkflowEndToEnd(t *testing.T) {
	_, _, cfg := testServer(t)
	ctx := context.Background()

	kv := localstore.NewMemory()
	tokens := auth.NewTokenStore(kv)
	cli := client.New(cfg, tokens)

	token, err := cli.Login(ctx, cfg.MockUserEmail, cfg.MockUserPassword)
	require.NoError(t, err)
	require.NoError(t, tokens.SetToken(token))

	resolver := location.NewResolver(location.Unsupported{}, "")
	ctrl := form.NewController(draft.NewStore(kv), cli, resolver, form.WithRedirectDelay(0))

	for i, name := range []string{"top.png", "far.png", "close.png"} {
		_, err := ctrl.BindPhoto(i, name, pngBytes(t))
		require.NoError(t, err)
	}
	require.NoError(t, ctrl.SetDistrict("sandakan"))
	ctrl.PickLocation(ctx, location.Coordinates{Latitude: 5.8394, Longitude: 118.1172})
	ctrl.SetDescription("pothole swallowing half the lane")
	require.NoError(t, ctrl.SaveDraft())

	receipt, err := ctrl.Submit(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(receipt.CaseID, "SRC_SAN_"), receipt.CaseID)
	require.Equal(t, "Submitted", receipt.Status)
	require.Equal(t, "Low", receipt.Severity)

	// Successful submission clears the saved draft and empties the form.
	_, ok, _ := kv.Get(draft.Key)
	require.False(t, ok)
	require.Equal(t, 0, ctrl.Draft().BoundPhotoCount())

	reports, err := cli.MyReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, receipt.CaseID, reports[0].CaseID)
	require.Equal(t, "Lat: 5.839400, Lng: 118.117200", reports[0].Location)

	stats, err := cli.DashboardStats(ctx, map[string]string{"district": "sandakan"})
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalCases)
	require.Equal(t, 1, stats.UnderReview)
}

func TestRepeatReportsAtSameSpotRaiseSeverity(t *testing.T) {
	_, _, cfg := testServer(t)
	ctx := context.Background()

	kv := localstore.NewMemory()
	tokens := auth.NewTokenStore(kv)
	cli := client.New(cfg, tokens)
	token, err := cli.Login(ctx, cfg.MockUserEmail, cfg.MockUserPassword)
	require.NoError(t, err)
	require.NoError(t, tokens.SetToken(token))

	resolver := location.NewResolver(location.Unsupported{}, "")
	point := location.Coordinates{Latitude: 4.2448, Longitude: 117.8911}

	submit := func() (caseID, severity string, similar int) {
		ctrl := form.NewController(draft.NewStore(localstore.NewMemory()), cli, resolver, form.WithRedirectDelay(0))
		for i, name := range []string{"top.png", "far.png", "close.png"} {
			_, err := ctrl.BindPhoto(i, name, pngBytes(t))
			require.NoError(t, err)
		}
		require.NoError(t, ctrl.SetDistrict("tawau"))
		ctrl.PickLocation(ctx, point)
		receipt, err := ctrl.Submit(ctx)
		require.NoError(t, err)
		return receipt.CaseID, receipt.Severity, receipt.SimilarReports
	}

	first, severity, similar := submit()
	require.True(t, strings.HasSuffix(first, "_0001"), first)
	require.Equal(t, "Low", severity)
	require.Equal(t, 0, similar)

	second, severity, similar := submit()
	require.True(t, strings.HasSuffix(second, "_0002"), second)
	require.Equal(t, "Medium", severity)
	require.Equal(t, 1, similar)
}

func TestAuthorizationRequired(t *testing.T) {
	_, ts, _ := testServer(t)

	for _, header := range []string{"", "Bearer not-a-jwt"} {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/homepage/my-reports", nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, _, cfg := testServer(t)
	cli := client.New(cfg, auth.NewTokenStore(localstore.NewMemory()))

	_, err := cli.Login(context.Background(), cfg.MockUserEmail, "wrong-password")
	require.Error(t, err)

	_, err = cli.Login(context.Background(), "nobody@example.com", "tarmac-and-rain")
	require.Error(t, err)
}

func TestSignupValidatesPassword(t *testing.T) {
	s, ts, _ := testServer(t)

	resp, err := http.Post(ts.URL+"/api/auth/signup", "application/json",
		strings.NewReader(`{"email":"new@example.com","password":"short"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/auth/signup", "application/json",
		strings.NewReader(`{"email":"new@example.com","password":"long-enough-pass"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var count int64
	require.NoError(t, s.DB.Model(&User{}).Where("email = ?", "new@example.com").Count(&count).Error)
	require.EqualValues(t, 1, count)
}
