package http

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalis-labs/keygate/adapters/chain"
	"github.com/portalis-labs/keygate/adapters/kv"
	"github.com/portalis-labs/keygate/adapters/sqlite"
	"github.com/portalis-labs/keygate/adapters/tokenizer"
	"github.com/portalis-labs/keygate/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.Open(t.TempDir() + "/keygate.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	svc := service.New(service.Config{}, service.Deps{
		KV:         kv.NewMemoryKV(),
		Identities: store,
		Sessions:   store,
		Audits:     store,
		Tokenizer:  tokenizer.NewJWTTokenizer(signKey),
		Resolver:   chain.NewResolver(nil, common.Address{}, nil),
	})

	return SetupRouter(svc)
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBeginRegistrationReturnsCeremony(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/auth/register/begin",
		`{"email":"a@example.com","display_name":"Test User"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["challenge_id"])
	assert.NotEmpty(t, body["challenge"])
	assert.Equal(t, "localhost", body["rp_id"])
}

func TestBeginAuthenticationDiscoverable(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/auth/login/begin", `{}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["challenge_id"])
}

func TestFinishRegistrationUnknownChallenge(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/auth/register/finish",
		`{"challenge_id":"missing","response":{"credential_id":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFinishRegistrationRejectsBadJSON(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/auth/register/finish", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMeRequiresBearer(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRequiresBearer(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsExposed(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
