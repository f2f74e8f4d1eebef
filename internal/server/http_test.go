package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightvendors/portfolyze/internal/api"
	"github.com/rightvendors/portfolyze/internal/audit"
	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/server"
	"github.com/rightvendors/portfolyze/internal/server/servertest"
)

func call(t *testing.T, s *servertest.Stack, method, path string, body any, token string, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL()+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func signIn(t *testing.T, s *servertest.Stack, phone string) api.AuthResponse {
	t.Helper()
	var widget api.CreateChallengeResponse
	require.Equal(t, http.StatusCreated, call(t, s, http.MethodPost, "/v1/challenges",
		api.CreateChallengeRequest{ContainerID: "recaptcha-container", Size: "invisible"}, "", &widget))
	var proof api.RenderChallengeResponse
	require.Equal(t, http.StatusOK, call(t, s, http.MethodPost, "/v1/challenges/"+widget.WidgetID+"/render", nil, "", &proof))

	var sent api.SendCodeResponse
	require.Equal(t, http.StatusOK, call(t, s, http.MethodPost, "/v1/verifications",
		api.SendCodeRequest{PhoneNumber: phone, ChallengeToken: proof.Token}, "", &sent))
	var otp api.DevOTPResponse
	require.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/v1/dev/otp?handle="+sent.Handle, nil, "", &otp))
	require.Len(t, otp.OTP, 6)

	var res api.AuthResponse
	require.Equal(t, http.StatusOK, call(t, s, http.MethodPost, "/v1/verifications/confirm",
		api.ConfirmCodeRequest{Handle: sent.Handle, Code: otp.OTP}, "", &res))
	return res
}

func TestHTTP_SignInFlow(t *testing.T) {
	s := servertest.New(t)

	res := signIn(t, s, "9876543210")
	assert.True(t, res.IsNew)
	assert.Equal(t, "+919876543210", res.Identity.PhoneNumber)
	require.NotEmpty(t, res.AccessToken)

	var me api.Identity
	require.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/v1/me", nil, res.AccessToken, &me))
	assert.Equal(t, res.Identity.UID, me.UID)

	require.Equal(t, http.StatusOK, call(t, s, http.MethodPatch, "/v1/me",
		api.UpdateProfileRequest{DisplayName: "  Asha  "}, res.AccessToken, &me))
	assert.Equal(t, "Asha", me.DisplayName)

	var refreshed api.AuthResponse
	require.Equal(t, http.StatusOK, call(t, s, http.MethodPost, "/v1/sessions/refresh",
		api.RefreshRequest{RefreshToken: res.RefreshToken}, "", &refreshed))
	assert.NotEqual(t, res.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, "Asha", refreshed.Identity.DisplayName)

	var entries api.AuditListResponse
	require.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/v1/me/audit", nil, refreshed.AccessToken, &entries))
	var actions []string
	for _, e := range entries.Entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, audit.ActionSignIn)
	assert.Contains(t, actions, audit.ActionProfileUpdated)
	assert.NotContains(t, actions, "update", "PATCH /v1/me is audited once by the service")

	require.Equal(t, http.StatusNoContent, call(t, s, http.MethodPost, "/v1/sessions/logout",
		api.RefreshRequest{RefreshToken: refreshed.RefreshToken}, "", nil))
	var errResp api.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, call(t, s, http.MethodGet, "/v1/me", nil, refreshed.AccessToken, &errResp))
	assert.Equal(t, auth.CodeUserTokenExpired, errResp.Error.Code)
}

func TestHTTP_ErrorShapes(t *testing.T) {
	s := servertest.New(t)

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing phone", http.MethodPost, "/v1/verifications", api.SendCodeRequest{ChallengeToken: "x"}, http.StatusBadRequest, auth.CodeMissingPhoneNumber},
		{"bad proof", http.MethodPost, "/v1/verifications", api.SendCodeRequest{PhoneNumber: "+919876543210", ChallengeToken: "x"}, http.StatusBadRequest, auth.CodeCaptchaCheckFailed},
		{"missing code", http.MethodPost, "/v1/verifications/confirm", api.ConfirmCodeRequest{Handle: "h"}, http.StatusBadRequest, auth.CodeMissingVerificationCode},
		{"unknown handle", http.MethodPost, "/v1/verifications/confirm", api.ConfirmCodeRequest{Handle: "h", Code: "123456"}, http.StatusBadRequest, auth.CodeCodeExpired},
		{"no container", http.MethodPost, "/v1/challenges", api.CreateChallengeRequest{}, http.StatusBadRequest, auth.CodeMissingAppCredential},
		{"bad refresh", http.MethodPost, "/v1/sessions/refresh", api.RefreshRequest{RefreshToken: "nope"}, http.StatusUnauthorized, auth.CodeUserTokenExpired},
		{"no token", http.MethodGet, "/v1/me", nil, http.StatusUnauthorized, auth.CodeUserTokenExpired},
		{"invalid contact", http.MethodPost, "/v1/contact", api.ContactRequest{Name: "A"}, http.StatusBadRequest, "contact/invalid-argument"},
		{"unknown route", http.MethodGet, "/v1/nope", nil, http.StatusNotFound, "not-found"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var resp api.ErrorResponse
			status := call(t, s, tc.method, tc.path, tc.body, "", &resp)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestHTTP_Contact(t *testing.T) {
	s := servertest.New(t)

	var resp api.ContactResponse
	status := call(t, s, http.MethodPost, "/v1/contact", api.ContactRequest{
		Name:    "Ravi",
		Email:   "Ravi@Example.com",
		Company: "Acme",
		Message: "Interested in a demo.",
	}, "", &resp)
	require.Equal(t, http.StatusAccepted, status)
	assert.NotEmpty(t, resp.ID)
	assert.False(t, resp.Relayed)

	m, ok := s.Contacts.Get(resp.ID)
	require.True(t, ok)
	assert.Equal(t, "ravi@example.com", m.Email)
}

func TestHTTP_Healthz(t *testing.T) {
	s := servertest.New(t)
	var body map[string]any
	assert.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/healthz", nil, "", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestNewHTTPServer_CORS(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := server.NewHTTPServer(":0", []string{"https://portfolyze.in"}, h)

	req := httptest.NewRequest(http.MethodOptions, "/v1/verifications", nil)
	req.Header.Set("Origin", "https://portfolyze.in")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://portfolyze.in", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
