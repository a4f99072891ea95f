//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"
)

const defaultHTTPBase = "http://localhost:8080"

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient() *httpClient {
	base := os.Getenv("IDENTITY_HTTP_URL")
	if base == "" {
		base = defaultHTTPBase
	}
	return &httpClient{
		baseURL: base,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *httpClient) do(t *testing.T, method, path, accessToken string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	buf := &bytes.Buffer{}
	if _, err = buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	return resp, buf.Bytes()
}

func (c *httpClient) postJSON(t *testing.T, path string, body any) (*http.Response, []byte) {
	return c.do(t, http.MethodPost, path, "", body)
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/v1/auth/login", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func TestIdentityE2E_HTTPFlow(t *testing.T) {
	httpBase := os.Getenv("IDENTITY_HTTP_URL")
	if httpBase == "" {
		httpBase = defaultHTTPBase
	}

	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}

	client := newHTTPClient()

	state := struct {
		email           string
		username        string
		password        string
		newPassword     string
		accessToken     string
		refreshToken    string
		newRefreshToken string
	}{
		email:       fmt.Sprintf("e2e+%d@example.com", time.Now().UnixNano()),
		username:    fmt.Sprintf("e2e-%d", time.Now().UnixNano()),
		password:    "StrongPass1",
		newPassword: "NewStrongPass1",
	}

	abort := false
	fail := func(t *testing.T, format string, args ...any) {
		abort = true
		t.Fatalf(format, args...)
	}

	step := func(name string, fn func(t *testing.T)) {
		t.Run(name, func(t *testing.T) {
			if abort {
				t.Skip("previous step failed")
			}
			fn(t)
		})
	}

	step("LoginBeforeRegister", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/auth/login", map[string]string{
			"identifier": state.email,
			"password":   state.password,
		})
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected login before register to fail, got %d", resp.StatusCode)
		}
	})

	step("Register", func(t *testing.T) {
		resp, body := client.postJSON(t, "/api/v1/users", map[string]string{
			"email":    state.email,
			"username": state.username,
			"name":     "E2E User",
			"password": state.password,
		})
		if resp.StatusCode != http.StatusCreated {
			fail(t, "register status: %d body: %s", resp.StatusCode, string(body))
		}
		if bytes.Contains(body, []byte(state.password)) {
			fail(t, "password leaked into register response")
		}
	})

	step("RegisterWeakPassword", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/users", map[string]string{
			"email":    "weak-" + state.email,
			"username": "weak-" + state.username,
			"name":     "E2E User",
			"password": "short",
		})
		if resp.StatusCode != http.StatusBadRequest {
			fail(t, "expected weak password register to fail, got %d", resp.StatusCode)
		}
	})

	step("RegisterDuplicateEmail", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/users", map[string]string{
			"email":    state.email,
			"username": "other-" + state.username,
			"name":     "E2E User",
			"password": state.password,
		})
		if resp.StatusCode != http.StatusConflict {
			fail(t, "expected duplicate email conflict, got %d", resp.StatusCode)
		}
	})

	step("RegisterDuplicateUsername", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/users", map[string]string{
			"email":    "other-" + state.email,
			"username": state.username,
			"name":     "E2E User",
			"password": state.password,
		})
		if resp.StatusCode != http.StatusConflict {
			fail(t, "expected duplicate username conflict, got %d", resp.StatusCode)
		}
	})

	step("LoginByEmail", func(t *testing.T) {
		resp, body := client.postJSON(t, "/api/v1/auth/login", map[string]string{
			"identifier": state.email,
			"password":   state.password,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "login status: %d body: %s", resp.StatusCode, string(body))
		}

		var loginRes struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.Unmarshal(body, &loginRes); err != nil {
			fail(t, "login unmarshal failed: %v", err)
		}
		if loginRes.AccessToken == "" || loginRes.RefreshToken == "" {
			fail(t, "expected access and refresh tokens")
		}
		state.accessToken = loginRes.AccessToken
		state.refreshToken = loginRes.RefreshToken
	})

	step("LoginByUsername", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/auth/login", map[string]string{
			"identifier": state.username,
			"password":   state.password,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "expected login by username to succeed, got %d", resp.StatusCode)
		}
	})

	step("Me", func(t *testing.T) {
		resp, body := client.do(t, http.MethodGet, "/api/v1/users/me", state.accessToken, nil)
		if resp.StatusCode != http.StatusOK {
			fail(t, "me status: %d body: %s", resp.StatusCode, string(body))
		}
		if !bytes.Contains(body, []byte(state.username)) {
			fail(t, "expected own profile, got %s", string(body))
		}
	})

	step("MeWithoutToken", func(t *testing.T) {
		resp, _ := client.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected 401 without token, got %d", resp.StatusCode)
		}
	})

	step("UpdateMe", func(t *testing.T) {
		resp, body := client.do(t, http.MethodPatch, "/api/v1/users/me", state.accessToken, map[string]string{
			"name": "Renamed User",
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "update me status: %d body: %s", resp.StatusCode, string(body))
		}
		if !bytes.Contains(body, []byte("Renamed User")) {
			fail(t, "expected updated name, got %s", string(body))
		}
	})

	step("RefreshToken", func(t *testing.T) {
		resp, body := client.postJSON(t, "/api/v1/auth/refresh", map[string]string{
			"refresh_token": state.refreshToken,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "refresh status: %d body: %s", resp.StatusCode, string(body))
		}
		var refreshRes struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.Unmarshal(body, &refreshRes); err != nil {
			fail(t, "refresh unmarshal failed: %v", err)
		}
		if refreshRes.RefreshToken == "" || refreshRes.RefreshToken == state.refreshToken {
			fail(t, "expected a rotated refresh token")
		}
		state.newRefreshToken = refreshRes.RefreshToken
	})

	step("OldRefreshTokenInvalid", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/auth/refresh", map[string]string{
			"refresh_token": state.refreshToken,
		})
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected old refresh token invalid, got %d", resp.StatusCode)
		}
	})

	step("RefreshTokenConcurrent", func(t *testing.T) {
		resp, body := client.postJSON(t, "/api/v1/auth/login", map[string]string{
			"identifier": state.email,
			"password":   state.password,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "login for concurrency test status: %d body: %s", resp.StatusCode, string(body))
		}
		var concLogin struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.Unmarshal(body, &concLogin); err != nil {
			fail(t, "login for concurrency unmarshal failed: %v", err)
		}

		var wg sync.WaitGroup
		results := make(chan int, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, _ := client.postJSON(t, "/api/v1/auth/refresh", map[string]string{
					"refresh_token": concLogin.RefreshToken,
				})
				results <- r.StatusCode
			}()
		}
		wg.Wait()
		close(results)

		var okCount, unauthorizedCount int
		for code := range results {
			switch code {
			case http.StatusOK:
				okCount++
			case http.StatusUnauthorized:
				unauthorizedCount++
			}
		}
		if okCount != 1 || unauthorizedCount != 1 {
			fail(t, "expected one success and one unauthorized, got ok=%d unauthorized=%d", okCount, unauthorizedCount)
		}
	})

	step("Logout", func(t *testing.T) {
		resp, body := client.postJSON(t, "/api/v1/auth/logout", map[string]string{
			"refresh_token": state.newRefreshToken,
		})
		if resp.StatusCode != http.StatusNoContent {
			fail(t, "logout status: %d body: %s", resp.StatusCode, string(body))
		}
	})

	step("LogoutInvalidatesRefresh", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/auth/refresh", map[string]string{
			"refresh_token": state.newRefreshToken,
		})
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected refresh token invalid after logout, got %d", resp.StatusCode)
		}
	})

	step("LogoutTwice", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/auth/logout", map[string]string{
			"refresh_token": state.newRefreshToken,
		})
		if resp.StatusCode != http.StatusUnauthorized {
			fail(t, "expected second logout to fail, got %d", resp.StatusCode)
		}
	})

	step("RequestResetUnknownUser", func(t *testing.T) {
		resp, body := client.postJSON(t, "/api/v1/auth/request-password-reset", map[string]string{
			"email": "missing-" + state.email,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "expected reset request for missing user to return 200, got %d body: %s", resp.StatusCode, string(body))
		}
	})

	step("RequestResetKnownUserLooksTheSame", func(t *testing.T) {
		knownResp, knownBody := client.postJSON(t, "/api/v1/auth/request-password-reset", map[string]string{
			"email": state.email,
		})
		unknownResp, unknownBody := client.postJSON(t, "/api/v1/auth/request-password-reset", map[string]string{
			"email": "missing2-" + state.email,
		})
		if knownResp.StatusCode != http.StatusOK || unknownResp.StatusCode != http.StatusOK {
			fail(t, "expected both reset requests to return 200, got %d and %d", knownResp.StatusCode, unknownResp.StatusCode)
		}
		if !bytes.Equal(knownBody, unknownBody) {
			fail(t, "reset responses must be indistinguishable: %s vs %s", string(knownBody), string(unknownBody))
		}
	})

	step("ResetPasswordBogusToken", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/auth/reset-password", map[string]string{
			"token":        "bogus",
			"new_password": state.newPassword,
		})
		if resp.StatusCode != http.StatusBadRequest {
			fail(t, "expected bogus reset token to fail, got %d", resp.StatusCode)
		}
	})

	step("LoginStillWorksWithCurrentPassword", func(t *testing.T) {
		resp, _ := client.postJSON(t, "/api/v1/auth/login", map[string]string{
			"identifier": state.email,
			"password":   state.password,
		})
		if resp.StatusCode != http.StatusOK {
			fail(t, "expected current password to keep working, got %d", resp.StatusCode)
		}
	})
}
