// Package gauth authorizes requests to Google APIs with a service-account
// key, using the OAuth 2.0 JWT bearer grant.
package gauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes used by the harvester.
const (
	ScopeSheetsReadOnly = "https://www.googleapis.com/auth/spreadsheets.readonly"
	ScopeDriveFile      = "https://www.googleapis.com/auth/drive.file"
	ScopeDrive          = "https://www.googleapis.com/auth/drive"
)

// ErrAuth wraps every failure to load credentials or obtain a token.
var ErrAuth = errors.New("authentication failed")

// Credentials is a validated service-account key.
type Credentials struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`

	raw []byte
}

// LoadCredentials reads and validates a service-account key file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read credentials: %w", ErrAuth, err)
	}
	return ParseCredentials(data)
}

// ParseCredentials parses a service-account key. The private key is checked
// here so a broken key fails before the first API call.
func ParseCredentials(data []byte) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: failed to parse credentials: %w", ErrAuth, err)
	}
	if c.Type != "service_account" {
		return nil, fmt.Errorf("%w: unsupported credentials type %q", ErrAuth, c.Type)
	}
	if c.ClientEmail == "" {
		return nil, fmt.Errorf("%w: client_email is missing", ErrAuth)
	}
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.PrivateKey)); err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %w", ErrAuth, err)
	}

	if c.TokenURI == "" {
		c.TokenURI = google.JWTTokenURL
	}
	c.raw = data
	return &c, nil
}

// TokenSource is an oauth2.TokenSource for one service account and scope
// set. Tokens are cached until shortly before they expire.
type TokenSource struct {
	src oauth2.TokenSource
}

// NewTokenSource creates a token source. Token requests go through client;
// nil uses http.DefaultClient. ctx bounds every token request made by the
// source.
func NewTokenSource(ctx context.Context, creds *Credentials, client *http.Client, scopes ...string) (*TokenSource, error) {
	conf, err := google.JWTConfigFromJSON(creds.raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	conf.TokenURL = creds.TokenURI

	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	return &TokenSource{src: conf.TokenSource(ctx)}, nil
}

// Token returns a valid access token, fetching a new one when needed.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	tok, err := ts.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	return tok, nil
}
