package handler

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rallyup/activityhub/internal/assets"
	"rallyup/activityhub/internal/config"
	"rallyup/activityhub/internal/model"
	"rallyup/activityhub/internal/repository"
	"rallyup/activityhub/internal/service"
	jwtpkg "rallyup/activityhub/pkg/jwt"
)

const assetBaseURL = "http://localhost/assets"

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	engine *gin.Engine
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type session struct {
	ID    string
	Token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, model.AutoMigrate(db))

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "test"},
		Assets:  config.AssetsConfig{Local: config.LocalConfig{MountPath: "/assets"}},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	userRepo := repository.NewPGUserRepository(db)
	activityRepo := repository.NewPGActivityRepository(db)
	jwtManager := jwtpkg.NewManager("test-signing-key", "activityhub", time.Hour, 24*time.Hour)
	assetStore := assets.NewLocalStore(afero.NewMemMapFs(), "/assets", assetBaseURL)
	log := zap.NewNop()

	authService := service.NewAuthService(userRepo, repository.NewMemorySessionStore(), jwtManager, log)
	userService := service.NewUserService(userRepo, log)
	activityService := service.NewActivityService(activityRepo, assetStore,
		service.ActivityServiceConfig{BannerMaxWidth: 16}, log)

	engine := SetupRouter(cfg, log, jwtManager, userRepo,
		NewAuthHandler(authService),
		NewActivityHandler(activityService, 1<<20),
		NewUserHandler(userService),
		NewAdminHandler(userService),
		assetStore.FS(),
	)
	return &testServer{t: t, db: db, engine: engine}
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.serve(req, token)
}

func (s *testServer) serve(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

// signUp registers and logs in a user.
func (s *testServer) signUp(username string) session {
	s.t.Helper()
	w, _ := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "password-" + username,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    username + "@example.com",
		"password": "password-" + username,
	})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var login struct {
		AccessToken string     `json:"access_token"`
		User        model.User `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &login))
	return session{ID: login.User.ID.String(), Token: login.AccessToken}
}

func decodeActivity(t *testing.T, env envelope) ActivityResponse {
	t.Helper()
	var a ActivityResponse
	require.NoError(t, json.Unmarshal(env.Data, &a))
	return a
}

func pngImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "banner.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHikeScenario(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")
	bob := s.signUp("bob")

	w, env := s.do(http.MethodPost, "/api/v1/activities", alice.Token, gin.H{
		"title":    "Hike",
		"category": "outdoors",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	hike := decodeActivity(t, env)
	assert.Equal(t, "Hike", hike.Title)
	assert.Equal(t, model.VisibilityPrivate, hike.Visibility)
	assert.Equal(t, alice.ID, hike.Owner.ID.String())
	assert.Empty(t, hike.Invitees)
	assert.Regexp(t, `^[0-9a-f]{10}$`, hike.ReferralCode)

	joinPath := "/api/v1/activities/join/" + hike.ReferralCode
	w, env = s.do(http.MethodPost, joinPath, bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	joined := decodeActivity(t, env)
	require.Len(t, joined.Invitees, 1)
	assert.Equal(t, bob.ID, joined.Invitees[0].ID.String())
	assert.Equal(t, "bob", joined.Invitees[0].Username)
	assert.Empty(t, joined.ReferralCode)

	w, env = s.do(http.MethodPost, joinPath, bob.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_JOINED", env.Error)

	w, env = s.do(http.MethodGet, "/api/v1/activities/"+hike.ID.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeActivity(t, env).Invitees, 1)

	itemPath := "/api/v1/activities/" + hike.ID.String()
	w, _ = s.do(http.MethodPut, itemPath, bob.Token, gin.H{"title": "Bob's hike"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodPut, itemPath, alice.Token, gin.H{
		"title":         "Sunrise hike",
		"referral_code": "0000000000",
		"owner":         bob.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeActivity(t, env)
	assert.Equal(t, "Sunrise hike", updated.Title)
	assert.Equal(t, model.VisibilityPrivate, updated.Visibility)
	assert.Equal(t, hike.ReferralCode, updated.ReferralCode)
	assert.Equal(t, alice.ID, updated.Owner.ID.String())

	w, _ = s.do(http.MethodDelete, itemPath, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodDelete, itemPath, alice.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(http.MethodGet, itemPath, alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ACTIVITY_NOT_FOUND", env.Error)
}

func TestActivityRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/v1/activities", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", env.Error)

	w, _ = s.do(http.MethodPost, "/api/v1/activities", "not-a-jwt", gin.H{"title": "x", "category": "y"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateActivityValidation(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")

	w, _ := s.do(http.MethodPost, "/api/v1/activities", alice.Token, gin.H{"category": "outdoors"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(http.MethodPost, "/api/v1/activities", alice.Token, gin.H{"title": "   ", "category": "outdoors"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", env.Error)

	w, _ = s.do(http.MethodPost, "/api/v1/activities", alice.Token, gin.H{
		"title": "Hike", "category": "outdoors", "visibility": "friends",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListActivitiesFilter(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")

	for _, body := range []gin.H{
		{"title": "Hike", "category": "outdoors"},
		{"title": "Chess", "category": "games", "visibility": "public"},
	} {
		w, _ := s.do(http.MethodPost, "/api/v1/activities", alice.Token, body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w, env := s.do(http.MethodGet, "/api/v1/activities?visibility=public", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []ActivityResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Chess", list[0].Title)

	w, env = s.do(http.MethodGet, "/api/v1/activities?category=cooking", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))

	w, _ = s.do(http.MethodGet, "/api/v1/activities?color=blue", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinEdgeCases(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")

	w, env := s.do(http.MethodPost, "/api/v1/activities", alice.Token, gin.H{"title": "Hike", "category": "outdoors"})
	require.Equal(t, http.StatusCreated, w.Code)
	hike := decodeActivity(t, env)

	w, env = s.do(http.MethodPost, "/api/v1/activities/join/"+hike.ReferralCode, alice.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "OWNER_CANNOT_JOIN", env.Error)

	w, _ = s.do(http.MethodPost, "/api/v1/activities/join/ffffffffff", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	bob := s.signUp("bob")
	w, env = s.do(http.MethodPost, "/api/v1/activities/join/"+strings.ToUpper(hike.ReferralCode), bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ACTIVITY_NOT_FOUND", env.Error)
}

func TestPrivateActivityHiddenFromStrangers(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")
	mallory := s.signUp("mallory")

	w, env := s.do(http.MethodPost, "/api/v1/activities", alice.Token, gin.H{"title": "Hike", "category": "outdoors"})
	require.Equal(t, http.StatusCreated, w.Code)
	hike := decodeActivity(t, env)
	require.NotEmpty(t, hike.ReferralCode)
	w, _ = s.do(http.MethodPost, "/api/v1/activities", alice.Token, gin.H{
		"title": "Chess", "category": "games", "visibility": "public",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/activities", mallory.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []ActivityResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Chess", list[0].Title)
	assert.Empty(t, list[0].ReferralCode)
	assert.NotContains(t, string(env.Data), hike.ReferralCode)

	w, env = s.do(http.MethodGet, "/api/v1/activities/"+hike.ID.String(), mallory.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(env.Data), "referral_code")

	w, env = s.do(http.MethodGet, "/api/v1/activities", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	for _, a := range list {
		assert.NotEmpty(t, a.ReferralCode, a.Title)
	}
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")

	w, env := s.do(http.MethodGet, "/api/v1/activities/not-a-uuid", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ACTIVITY_NOT_FOUND", env.Error)

	w, env = s.do(http.MethodPut, "/api/v1/activities/42", alice.Token, gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ACTIVITY_NOT_FOUND", env.Error)

	w, env = s.do(http.MethodGet, "/api/v1/users/not-a-uuid", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", env.Error)
}

func TestHandlersWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewActivityHandler(nil, 0)
	for name, fn := range map[string]gin.HandlerFunc{
		"list":   h.List,
		"get":    h.Get,
		"create": h.Create,
		"join":   h.Join,
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		fn(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), name)
		assert.Equal(t, "UNAUTHENTICATED", env.Error, name)
	}
}

func TestRemoveInviteeRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")
	bob := s.signUp("bob")
	carol := s.signUp("carol")

	w, env := s.do(http.MethodPost, "/api/v1/activities", alice.Token, gin.H{"title": "Hike", "category": "outdoors"})
	require.Equal(t, http.StatusCreated, w.Code)
	hike := decodeActivity(t, env)
	w, _ = s.do(http.MethodPost, "/api/v1/activities/join/"+hike.ReferralCode, bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	bobPath := "/api/v1/activities/" + hike.ID.String() + "/invitees/" + bob.ID
	w, _ = s.do(http.MethodDelete, bobPath, carol.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Removing someone who never joined leaves the list as it was.
	w, env = s.do(http.MethodDelete, "/api/v1/activities/"+hike.ID.String()+"/invitees/"+carol.ID, alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeActivity(t, env).Invitees, 1)

	w, env = s.do(http.MethodDelete, bobPath, alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeActivity(t, env).Invitees)

	w, env = s.do(http.MethodDelete, "/api/v1/activities/"+hike.ID.String()+"/invitees/not-a-uuid", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", env.Error)
}

func TestCreateActivityWithBannerUpload(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")

	req := multipartRequest(t, http.MethodPost, "/api/v1/activities", map[string]string{
		"title":      "Picnic",
		"category":   "food",
		"visibility": "public",
	}, pngImage(t, 40, 20))
	w, env := s.serve(req, alice.Token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	picnic := decodeActivity(t, env)
	assert.Equal(t, model.VisibilityPublic, picnic.Visibility)
	require.True(t, strings.HasPrefix(picnic.BannerImage, assetBaseURL+"/banners/"+picnic.ID.String()+"/"))

	w, _ = s.serve(httptest.NewRequest(http.MethodGet, strings.TrimPrefix(picnic.BannerImage, "http://localhost"), nil), "")
	require.Equal(t, http.StatusOK, w.Code)
	banner, _, err := image.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 16, banner.Bounds().Dx())

	req = multipartRequest(t, http.MethodPost, "/api/v1/activities", map[string]string{
		"title": "Picnic", "category": "food",
	}, []byte("definitely not an image"))
	w, _ = s.serve(req, alice.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetBannerRoute(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")
	bob := s.signUp("bob")

	w, env := s.do(http.MethodPost, "/api/v1/activities", alice.Token, gin.H{"title": "Hike", "category": "outdoors"})
	require.Equal(t, http.StatusCreated, w.Code)
	hike := decodeActivity(t, env)
	path := "/api/v1/activities/" + hike.ID.String() + "/banner"

	w, _ = s.serve(multipartRequest(t, http.MethodPut, path, nil, pngImage(t, 8, 8)), bob.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.serve(multipartRequest(t, http.MethodPut, path, nil, nil), alice.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.serve(multipartRequest(t, http.MethodPut, path, nil, pngImage(t, 8, 8)), alice.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decodeActivity(t, env).BannerImage)
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)
	s.signUp("alice")

	w, env := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice2", "email": "ALICE@example.com", "password": "long-password",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "USER_EXISTS", env.Error)

	w, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error)

	w, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "password-alice"})
	require.Equal(t, http.StatusOK, w.Code)
	var tokens service.TokenSet
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	assert.NotContains(t, string(env.Data), "password")

	w, env = s.do(http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	var rotated service.TokenSet
	require.NoError(t, json.Unmarshal(env.Data, &rotated))

	w, _ = s.do(http.MethodPost, "/api/v1/auth/logout", rotated.AccessToken, gin.H{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp("alice")
	bob := s.signUp("bob")

	w, env := s.do(http.MethodGet, "/api/v1/users/username/alice", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found model.User
	require.NoError(t, json.Unmarshal(env.Data, &found))
	assert.Equal(t, alice.ID, found.ID.String())

	w, _ = s.do(http.MethodGet, "/api/v1/users/"+alice.ID, bob.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodPut, "/api/v1/users/"+alice.ID, bob.Token, gin.H{"first_name": "Mallory"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodPut, "/api/v1/users/"+alice.ID, alice.Token, gin.H{"first_name": "Alice"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &found))
	assert.Equal(t, "Alice", found.FirstName)

	w, _ = s.do(http.MethodDelete, "/api/v1/users/"+alice.ID, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Promotion takes effect on the next request since roles are reloaded per request.
	require.NoError(t, s.db.Model(&model.User{}).Where("username = ?", "bob").Update("role", string(model.RoleAdmin)).Error)

	w, _ = s.do(http.MethodDelete, "/api/v1/users/"+alice.ID, bob.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/activities", alice.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/users", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []model.User
	require.NoError(t, json.Unmarshal(env.Data, &users))
	assert.Len(t, users, 1)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "activityhub_http_requests_total")
}
