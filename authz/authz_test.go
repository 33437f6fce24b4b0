package authz

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"enforce", ModeEnforce, false},
		{"shadow", ModeShadow, false},
		{"disabled", ModeDisabled, false},
		{"", ModeEnforce, false},
		{"permissive", "", true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestAllowed_PolicyMatrix(t *testing.T) {
	a, err := New(ModeEnforce, quietLogger())
	require.NoError(t, err)

	cases := []struct {
		role   string
		path   string
		method string
		want   bool
	}{
		{"admin", "/api/task-settings", http.MethodPost, true},
		{"admin", "/api/task-settings/abc", http.MethodDelete, true},
		{"admin", "/api/users", http.MethodPost, true},
		{"ops", "/api/task-settings", http.MethodGet, true},
		{"ops", "/api/users/u1/pointers", http.MethodGet, true},
		{"ops", "/api/task-settings", http.MethodPost, false},
		{"ops", "/api/task-settings/abc", http.MethodDelete, false},
		{"", "/api/task-settings", http.MethodGet, false},
		{"viewer", "/api/task-settings", http.MethodGet, false},
	}
	for _, tc := range cases {
		got, err := a.Allowed(tc.role, tc.path, tc.method)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %s %s", tc.role, tc.method, tc.path)
	}
}

func TestAllowed_DisabledModeSkipsEvaluation(t *testing.T) {
	a, err := New(ModeDisabled, quietLogger())
	require.NoError(t, err)

	ok, err := a.Allowed("nobody", "/api/task-settings", http.MethodDelete)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMiddleware_EnforceDenies(t *testing.T) {
	a, err := New(ModeEnforce, quietLogger())
	require.NoError(t, err)

	called := false
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/task-settings", nil)
	req.Header.Set(RoleHeader, "ops")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
}

func TestMiddleware_ShadowLetsDenialThrough(t *testing.T) {
	a, err := New(ModeShadow, quietLogger())
	require.NoError(t, err)

	called := false
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/task-settings", nil)
	req.Header.Set(RoleHeader, "ops")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, called)
}
