// Package e2e drives a running contribgate server through its HTTP API.
package e2e

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	devSigningKey = "dev-secret-key-change-in-production"
	devOwner      = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// TestContext carries one scenario's HTTP state. Named parties map to fresh
// random addresses so scenarios never collide on a shared server.
type TestContext struct {
	BaseURL string
	Owner   string

	client     *http.Client
	signingKey []byte
	issuer     string
	audience   string
	parties    map[string]string

	LastStatus int
	LastBody   []byte
}

// NewTestContext reads E2E_BASE_URL, E2E_OWNER and the JWT_* settings the
// server was started with.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(envOr("E2E_BASE_URL", "http://localhost:8080"), "/"),
		Owner:      envOr("E2E_OWNER", devOwner),
		client:     &http.Client{Timeout: 30 * time.Second},
		signingKey: []byte(envOr("JWT_SIGNING_KEY", devSigningKey)),
		issuer:     envOr("JWT_ISSUER", "contribgate"),
		audience:   envOr("JWT_AUDIENCE", "contribgate-api"),
		parties:    make(map[string]string),
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.parties = make(map[string]string)
	tc.LastStatus = 0
	tc.LastBody = nil
}

// Address resolves a party name. "owner" is the campaign owner; any other
// name gets a random address on first use.
func (tc *TestContext) Address(name string) string {
	if name == "owner" {
		return tc.Owner
	}
	if addr, ok := tc.parties[name]; ok {
		return addr
	}
	var b [20]byte
	_, _ = rand.Read(b[:])
	addr := "0x" + hex.EncodeToString(b[:])
	tc.parties[name] = addr
	return addr
}

func (tc *TestContext) token(subject string) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tc.issuer,
		Audience:  []string{tc.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}).SignedString(tc.signingKey)
}

// Do sends a request as the named party. An empty name sends no token.
func (tc *TestContext) Do(ctx context.Context, method, path, as string, body any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != "" {
		token, err := tc.token(tc.Address(as))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.LastStatus = resp.StatusCode
	tc.LastBody, err = io.ReadAll(resp.Body)
	return err
}

// Field returns a top-level field of the last JSON response.
func (tc *TestContext) Field(name string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.LastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.LastBody)
	}
	v, ok := body[name]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", name, tc.LastBody)
	}
	return v, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Status is the HTTP status of the last response.
func (tc *TestContext) Status() int {
	return tc.LastStatus
}
