package photos

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// Scopes requested for library uploads and album management.
var Scopes = []string{
	"https://www.googleapis.com/auth/photoslibrary",
	"https://www.googleapis.com/auth/photoslibrary.sharing",
}

// Credentials is the authorized-user token file written by the Google auth
// libraries.
type Credentials struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token"`
	IDToken      string     `json:"id_token,omitempty"`
	Scopes       []string   `json:"scopes,omitempty"`
	TokenURI     string     `json:"token_uri,omitempty"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// LoadCredentials reads an authorized-user token file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading auth file: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing auth file %s: %w", path, err)
	}
	if c.Token == "" && c.RefreshToken == "" {
		return nil, fmt.Errorf("auth file %s: no token or refresh_token", path)
	}
	return &c, nil
}

// Save writes the credentials to path, readable only by the owner.
func (c *Credentials) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing auth file: %w", err)
	}
	return nil
}

func (c *Credentials) oauthToken() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.Token,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
	}
	if c.Expiry != nil {
		tok.Expiry = *c.Expiry
	}
	return tok
}

// update copies a refreshed token back into c and reports whether it changed.
func (c *Credentials) update(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == c.Token {
		return false
	}
	c.Token = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		c.Expiry = &exp
	}
	return true
}
