package helper

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetEnvOptionalFallsBackToDefault(t *testing.T) {
	if got := GetEnvOptional("HELPER_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnvOptional() = %q, want fallback", got)
	}
}

func TestGetEnvOptionalHonorsSetValue(t *testing.T) {
	t.Setenv("HELPER_TEST_SET", "value")
	if got := GetEnvOptional("HELPER_TEST_SET", "fallback"); got != "value" {
		t.Errorf("GetEnvOptional() = %q, want value", got)
	}
}

func TestGetEnvIntOptionalFallsBackOnMissingOrInvalid(t *testing.T) {
	if got := GetEnvIntOptional("HELPER_TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("GetEnvIntOptional(unset) = %d, want 7", got)
	}
	t.Setenv("HELPER_TEST_INT_BAD", "not-a-number")
	if got := GetEnvIntOptional("HELPER_TEST_INT_BAD", 7); got != 7 {
		t.Errorf("GetEnvIntOptional(invalid) = %d, want 7", got)
	}
	t.Setenv("HELPER_TEST_INT_GOOD", "42")
	if got := GetEnvIntOptional("HELPER_TEST_INT_GOOD", 7); got != 42 {
		t.Errorf("GetEnvIntOptional(valid) = %d, want 42", got)
	}
}

func TestExtractBearerTokenFromAuthorizationHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	if got := ExtractBearerToken(req); got != "abc123" {
		t.Errorf("ExtractBearerToken() = %q, want abc123", got)
	}
}

func TestExtractBearerTokenFromSessionCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: "cookie-token"})
	if got := ExtractBearerToken(req); got != "cookie-token" {
		t.Errorf("ExtractBearerToken() = %q, want cookie-token", got)
	}
}

func TestExtractBearerTokenReturnsEmptyWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ExtractBearerToken(req); got != "" {
		t.Errorf("ExtractBearerToken() = %q, want empty", got)
	}
}

func TestExtractBearerTokenIgnoresNonBearerAuthorization(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := ExtractBearerToken(req); got != "" {
		t.Errorf("ExtractBearerToken() = %q, want empty for a non-Bearer scheme", got)
	}
}
