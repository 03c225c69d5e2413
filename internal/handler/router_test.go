package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givers/message-service/internal/repository"
	"github.com/givers/message-service/internal/service"
	"github.com/givers/message-service/pkg/auth"
)

// testServer wires the real router to an in-memory SQLite store.
func testServer(t *testing.T, authenticator auth.Authenticator) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	repo, err := repository.OpenSQLite(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Messages:       service.NewMessageService(repo),
		DB:             repo,
		Authenticator:  authenticator,
		FrontendURL:    "http://localhost:3000",
		RequestTimeout: 5 * time.Second,
		MetricsEnabled: true,
	}))
	t.Cleanup(srv.Close)
	return srv
}

type caller struct {
	userID string
	role   string
}

var (
	anonymous = caller{}
	admin     = caller{userID: "1", role: "admin"}
	member    = caller{userID: "2", role: "user"}
)

func do(t *testing.T, srv *httptest.Server, c caller, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.userID != "" {
		req.Header.Set(auth.HeaderUserID, c.userID)
		req.Header.Set(auth.HeaderUserType, c.role)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func submit(t *testing.T, srv *httptest.Server, c caller, i int) messageResponse {
	t.Helper()
	resp, data := do(t, srv, c, http.MethodPost, "/messages", map[string]string{
		"email":   fmt.Sprintf("user%d@example.com", i),
		"subject": fmt.Sprintf("Subject %d", i),
		"message": fmt.Sprintf("Message %d", i),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var out mutationResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out.Data
}

func TestRouter_SubmitThenGetRoundTrip(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})

	created := submit(t, srv, anonymous, 1)
	assert.Positive(t, created.MessageID)
	assert.Nil(t, created.UserID)
	assert.Equal(t, "open", created.Status)
	assert.True(t, strings.HasSuffix(created.DateCreated, "+00:00"), created.DateCreated)

	resp, data := do(t, srv, admin, http.MethodGet, fmt.Sprintf("/messages/%d", created.MessageID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var got struct {
		Message messageResponse `json:"message"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, created, got.Message)
}

func TestRouter_SubmitRecordsIdentifiedUser(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})

	created := submit(t, srv, caller{userID: "77", role: "user"}, 1)
	require.NotNil(t, created.UserID)
	assert.Equal(t, int64(77), *created.UserID)
}

func TestRouter_SubmitWithBadCredentialsStaysAnonymous(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})

	created := submit(t, srv, caller{userID: "not-a-number"}, 1)
	assert.Nil(t, created.UserID)
}

func TestRouter_SubmitAllFieldsMissing(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})

	resp, data := do(t, srv, anonymous, http.MethodPost, "/messages", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out errorResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "validation_failed", out.Error)
	assert.Len(t, out.Details, 3)
	assert.Contains(t, out.Details, "email")
	assert.Contains(t, out.Details, "subject")
	assert.Contains(t, out.Details, "message")

	_, data = do(t, srv, admin, http.MethodGet, "/messages", nil)
	var list listResponse
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Zero(t, list.Total, "rejected submission must not be stored")
}

func TestRouter_SubjectLengthCountsCharacters(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})

	resp, data := do(t, srv, anonymous, http.MethodPost, "/messages", map[string]string{
		"email":   "a@b.com",
		"subject": strings.Repeat("é", 200),
		"message": "hi",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	resp, _ = do(t, srv, anonymous, http.MethodPost, "/messages", map[string]string{
		"email":   "a@b.com",
		"subject": strings.Repeat("é", 201),
		"message": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_SubmitRejectsNUL(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})

	resp, data := do(t, srv, anonymous, http.MethodPost, "/messages", map[string]string{
		"email":   "a@b.com",
		"subject": "hi",
		"message": "before\x00after",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))
	var out errorResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "validation_failed", out.Error)
	assert.Contains(t, out.Details, "message")
}

func TestRouter_AdminRoutesRequireIdentity(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})
	created := submit(t, srv, anonymous, 1)
	path := fmt.Sprintf("/messages/%d", created.MessageID)

	cases := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/messages", nil},
		{http.MethodGet, path, nil},
		{http.MethodPut, path + "/status", map[string]string{"status": "closed"}},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp, _ := do(t, srv, anonymous, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp, _ = do(t, srv, member, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}

	// a forbidden caller must not have changed anything
	_, data := do(t, srv, admin, http.MethodGet, path, nil)
	assert.Contains(t, string(data), `"status":"open"`)
}

func TestRouter_SuperAdminAliasesAreAdmins(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})
	for _, role := range []string{"admin", "superadmin", "super_admin"} {
		resp, _ := do(t, srv, caller{userID: "9", role: role}, http.MethodGet, "/messages", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, role)
	}
}

func TestRouter_UnknownIDIsNotFound(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})

	resp, _ := do(t, srv, admin, http.MethodGet, "/messages/99999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, admin, http.MethodPut, "/messages/99999/status", map[string]string{"status": "closed"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_ListPaginationAndClamping(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})
	for i := 0; i < 25; i++ {
		submit(t, srv, anonymous, i)
	}

	resp, data := do(t, srv, admin, http.MethodGet, "/messages?page=3&perPage=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list listResponse
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Len(t, list.Messages, 5)
	assert.Equal(t, 25, list.Total)
	assert.Equal(t, 3, list.TotalPages)

	_, data = do(t, srv, admin, http.MethodGet, "/messages?per_page=1000", nil)
	list = listResponse{}
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 100, list.PerPage)
	assert.Len(t, list.Messages, 25)
	assert.Equal(t, "Subject 24", list.Messages[0].Subject, "newest first")

	_, data = do(t, srv, admin, http.MethodGet, "/messages?page=0&perPage=0", nil)
	list = listResponse{}
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 20, list.PerPage)
}

func TestRouter_HugePageIsEmptyNotError(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})
	for i := 0; i < 3; i++ {
		submit(t, srv, anonymous, i)
	}

	for _, page := range []string{"184467440737095517", "9223372036854775807"} {
		resp, data := do(t, srv, admin, http.MethodGet, "/messages?perPage=100&page="+page, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		var list listResponse
		require.NoError(t, json.Unmarshal(data, &list))
		assert.Empty(t, list.Messages, "page=%s", page)
		assert.Equal(t, 3, list.Total, "page=%s", page)
	}
}

func TestRouter_StatusLifecycle(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})
	first := submit(t, srv, anonymous, 1)
	second := submit(t, srv, anonymous, 2)
	statusPath := fmt.Sprintf("/messages/%d/status", first.MessageID)

	for i := 0; i < 2; i++ {
		resp, data := do(t, srv, admin, http.MethodPut, statusPath, map[string]string{"status": "closed"})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		var out mutationResponse
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, "closed", out.Data.Status)
		assert.Equal(t, first.DateCreated, out.Data.DateCreated)
		assert.Equal(t, first.Subject, out.Data.Subject)
	}

	_, data := do(t, srv, admin, http.MethodGet, "/messages?status=open", nil)
	var list listResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Messages, 1)
	assert.Equal(t, second.MessageID, list.Messages[0].MessageID)

	_, data = do(t, srv, admin, http.MethodGet, "/messages?status=all", nil)
	list = listResponse{}
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 2, list.Total)

	resp, _ := do(t, srv, admin, http.MethodGet, "/messages?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, admin, http.MethodPut, statusPath, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, admin, http.MethodPut, statusPath, map[string]string{"status": "CLOSED"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, admin, http.MethodGet, "/messages?status=OPEN", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = do(t, srv, admin, http.MethodPut, statusPath, map[string]string{"status": "open"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"status":"open"`)
}

func TestRouter_JWTMode(t *testing.T) {
	const secret = "test-secret"
	srv := testServer(t, auth.NewJWTAuthenticator(secret, "", ""))

	sign := func(claims jwt.MapClaims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return tok
	}
	get := func(token string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/messages", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	exp := time.Now().Add(time.Hour).Unix()
	assert.Equal(t, http.StatusOK, get(sign(jwt.MapClaims{"user_id": 1, "user_type": "admin", "exp": exp})))
	assert.Equal(t, http.StatusForbidden, get(sign(jwt.MapClaims{"user_id": 2, "user_type": "user", "exp": exp})))
	assert.Equal(t, http.StatusUnauthorized, get("garbage"))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv := testServer(t, auth.HeaderAuthenticator{})

	resp, data := do(t, srv, anonymous, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"healthy"`)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, _ = do(t, srv, anonymous, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	submit(t, srv, anonymous, 1)
	resp, data = do(t, srv, anonymous, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "message_service_messages_submitted_total")
	assert.Contains(t, string(data), `route="POST /messages"`)
}
