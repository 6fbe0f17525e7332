// Package photos uploads captured photos to a Google Photos album.
package photos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultBaseURL is the Photos Library API root.
const DefaultBaseURL = "https://photoslibrary.googleapis.com"

var (
	ErrClosed   = errors.New("photos client is closed")
	ErrRejected = errors.New("media item rejected")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	AuthFile string
	BaseURL  string
	// HTTPClient carries API and token-refresh requests. It defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Client is an authorized Photos Library session.
type Client struct {
	baseURL  string
	authFile string
	creds    *Credentials
	source   oauth2.TokenSource
	http     *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	albums map[string]string // lowercased title -> album id
	closed bool
}

// New loads the auth file and builds an authorized client. Expired access
// tokens are refreshed on first use.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	creds, err := LoadCredentials(opts.AuthFile)
	if err != nil {
		return nil, err
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
	if creds.TokenURI != "" {
		conf.Endpoint.TokenURL = creds.TokenURI
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	src := conf.TokenSource(ctx, creds.oauthToken())

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		authFile: opts.AuthFile,
		creds:    creds,
		source:   src,
		http:     oauth2.NewClient(ctx, src),
		logger:   logger,
		albums:   make(map[string]string),
	}, nil
}

// Upload adds the photo at path to the library and, when collection is not
// empty, to the album with that title, creating it if needed.
func (c *Client) Upload(ctx context.Context, path, collection string) error {
	if c.isClosed() {
		return ErrClosed
	}

	var albumID string
	if collection != "" {
		id, err := c.AlbumID(ctx, collection)
		if err != nil {
			return err
		}
		albumID = id
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}
	name := filepath.Base(path)

	token, err := c.uploadBytes(ctx, name, data)
	if err != nil {
		return err
	}

	req := batchCreateRequest{
		AlbumID: albumID,
		NewMediaItems: []newMediaItem{{
			SimpleMediaItem: simpleMediaItem{UploadToken: token, FileName: name},
		}},
	}
	var resp batchCreateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/mediaItems:batchCreate", nil, req, &resp); err != nil {
		return fmt.Errorf("adding %s to library: %w", name, err)
	}
	if len(resp.NewMediaItemResults) == 0 {
		return fmt.Errorf("adding %s to library: %w: empty result", name, ErrRejected)
	}
	if st := resp.NewMediaItemResults[0].Status; st.Code > 0 {
		return fmt.Errorf("adding %s to library: %w: %s (code %d)", name, ErrRejected, st.Message, st.Code)
	}

	c.logger.Info("photo uploaded", "file", name, "album", collection)
	return nil
}

func (c *Client) uploadBytes(ctx context.Context, name string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/uploads", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	req.Header.Set("X-Goog-Upload-File-Name", name)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading upload token: %w", err)
	}
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		return "", fmt.Errorf("uploading %s: %w", name, &APIError{
			Method: http.MethodPost, Path: "/v1/uploads", StatusCode: resp.StatusCode, Body: string(body),
		})
	}
	return string(body), nil
}

// AlbumID finds the app-created album titled title (case-insensitively) or
// creates it. The result is cached for the life of the client.
func (c *Client) AlbumID(ctx context.Context, title string) (string, error) {
	key := strings.ToLower(title)
	c.mu.Lock()
	id, ok := c.albums[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := c.findAlbum(ctx, key)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = c.createAlbum(ctx, title)
		if err != nil {
			return "", err
		}
		c.logger.Info("created photo album", "title", title)
	}

	c.mu.Lock()
	c.albums[key] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) findAlbum(ctx context.Context, key string) (string, error) {
	q := url.Values{"excludeNonAppCreatedData": {"true"}}
	for {
		var page listAlbumsResponse
		if err := c.doJSON(ctx, http.MethodGet, "/v1/albums", q, nil, &page); err != nil {
			return "", fmt.Errorf("listing albums: %w", err)
		}
		for _, a := range page.Albums {
			if strings.ToLower(a.Title) == key {
				return a.ID, nil
			}
		}
		if page.NextPageToken == "" {
			return "", nil
		}
		q.Set("pageToken", page.NextPageToken)
	}
}

func (c *Client) createAlbum(ctx context.Context, title string) (string, error) {
	var a album
	req := createAlbumRequest{Album: album{Title: title}}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/albums", nil, req, &a); err != nil {
		return "", fmt.Errorf("creating album %q: %w", title, err)
	}
	if a.ID == "" {
		return "", fmt.Errorf("creating album %q: response has no id", title)
	}
	return a.ID, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close persists a refreshed access token back to the auth file. The client
// cannot be used afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	tok, err := c.source.Token()
	if err != nil {
		c.logger.Warn("could not read current photos token", "error", err)
		return nil
	}
	if c.creds.update(tok) {
		if err := c.creds.Save(c.authFile); err != nil {
			return fmt.Errorf("saving refreshed token: %w", err)
		}
	}
	return nil
}
