// Package onedrive stores files in OneDrive through the Microsoft Graph API
// using the OAuth2 client-credentials grant.
package onedrive

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
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/memohai/linebot/internal/collab"
	"github.com/memohai/linebot/internal/config"
	"github.com/memohai/linebot/internal/media"
)

const serviceName = "onedrive"

// Item is the subset of a Graph driveItem the bot uses.
type Item struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Size                 int64      `json:"size"`
	WebURL               string     `json:"webUrl"`
	CreatedDateTime      time.Time  `json:"createdDateTime"`
	LastModifiedDateTime time.Time  `json:"lastModifiedDateTime"`
	Folder               *FolderRef `json:"folder,omitempty"`
	File                 *FileRef   `json:"file,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (i Item) IsFolder() bool { return i.Folder != nil }

type FolderRef struct {
	ChildCount int `json:"childCount"`
}

type FileRef struct {
	MimeType string `json:"mimeType"`
}

// Client performs OneDrive file operations under the configured root folder.
//
// The access token is acquired lazily and kept in an atomic pointer. Requests
// that find no valid token at the same moment each authenticate; the token
// endpoint is idempotent, so this only costs redundant calls.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	credential *clientcredentials.Config
	baseURL    string
	driveRoot  string
	rootFolder string
	configured bool
	token      atomic.Pointer[oauth2.Token]
}

// NewClient creates a OneDrive client. Missing credentials leave the client
// in a degraded state where every call returns collab.ErrNotConfigured.
func NewClient(log *slog.Logger, graph config.GraphConfig, drive config.OneDriveConfig, httpClient *http.Client) *Client {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.DefaultHTTPTimeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(graph.BaseURL), "/")
	if baseURL == "" {
		baseURL = config.DefaultGraphBaseURL
	}
	driveRoot := "/me/drive"
	if userID := strings.TrimSpace(drive.UserID); userID != "" {
		driveRoot = "/users/" + url.PathEscape(userID) + "/drive"
	}
	rootFolder := strings.Trim(strings.TrimSpace(drive.RootFolder), "/")
	if rootFolder == "" {
		rootFolder = config.DefaultRootFolder
	}
	c := &Client{
		logger:     log.With(slog.String("client", "onedrive")),
		httpClient: httpClient,
		credential: &clientcredentials.Config{
			ClientID:     strings.TrimSpace(graph.ClientID),
			ClientSecret: strings.TrimSpace(graph.ClientSecret),
			TokenURL:     graph.TokenURL(),
			Scopes:       []string{config.DefaultGraphScope},
		},
		baseURL:    baseURL,
		driveRoot:  driveRoot,
		rootFolder: rootFolder,
		configured: graph.Configured(),
	}
	if !c.configured {
		c.logger.Warn("microsoft graph configuration is incomplete; uploads disabled")
	}
	return c
}

// Configured reports whether client credentials are present.
func (c *Client) Configured() bool {
	return c.configured
}

// Authenticate exchanges the client credentials for an access token and caches it.
func (c *Client) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	if !c.configured {
		return nil, collab.ErrNotConfigured
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.credential.Token(ctx)
	if err != nil {
		cerr := &collab.Error{Service: serviceName, Op: "authenticate", Err: err}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			cerr.StatusCode = rerr.Response.StatusCode
			cerr.Body = string(rerr.Body)
		}
		return nil, cerr
	}
	c.token.Store(tok)
	c.logger.Info("authenticated with microsoft graph", slog.Time("expiry", tok.Expiry))
	return tok, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if tok := c.token.Load(); tok != nil && tok.Valid() {
		return tok.AccessToken, nil
	}
	tok, err := c.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Upload writes content to <root>/<folder>/<name>, replacing any existing file.
func (c *Client) Upload(ctx context.Context, content []byte, name, folder string) (Item, error) {
	endpoint := c.itemURL(folder, name) + ":/content"
	var item Item
	err := c.do(ctx, "upload", http.MethodPut, endpoint, "application/octet-stream", bytes.NewReader(content), []int{http.StatusOK, http.StatusCreated}, &item)
	if err != nil {
		return Item{}, err
	}
	c.logger.Info("file uploaded", slog.String("file_name", name), slog.String("folder", folder), slog.Int64("size", item.Size))
	return item, nil
}

// CreateFolder creates name under <root>/<parent>. Name conflicts are resolved by renaming.
func (c *Client) CreateFolder(ctx context.Context, name, parent string) (Item, error) {
	payload, err := json.Marshal(map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	})
	if err != nil {
		return Item{}, err
	}
	var item Item
	err = c.do(ctx, "create folder", http.MethodPost, c.childrenURL(parent), "application/json", bytes.NewReader(payload), []int{http.StatusOK, http.StatusCreated}, &item)
	if err != nil {
		return Item{}, err
	}
	c.logger.Info("folder created", slog.String("folder_name", item.Name), slog.String("parent", parent))
	return item, nil
}

// List returns the children of <root>/<folder>.
func (c *Client) List(ctx context.Context, folder string) ([]Item, error) {
	var page struct {
		Value []Item `json:"value"`
	}
	if err := c.do(ctx, "list", http.MethodGet, c.childrenURL(folder), "", nil, []int{http.StatusOK}, &page); err != nil {
		return nil, err
	}
	if page.Value == nil {
		return []Item{}, nil
	}
	return page.Value, nil
}

// Cleanup drops the cached token.
func (c *Client) Cleanup() {
	c.token.Store(nil)
	c.logger.Info("onedrive client cleaned up")
}

func (c *Client) do(ctx context.Context, op, method, endpoint, contentType string, body io.Reader, okStatus []int, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &collab.Error{Service: serviceName, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &collab.Error{Service: serviceName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &collab.Error{Service: serviceName, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if !containsStatus(okStatus, resp.StatusCode) {
		if resp.StatusCode == http.StatusUnauthorized {
			c.token.Store(nil)
		}
		c.logger.Error("graph request failed",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", collab.Truncate(string(respBody), 300)),
		)
		return &collab.Error{Service: serviceName, Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &collab.Error{Service: serviceName, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func containsStatus(list []int, status int) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

// itemPath joins the root folder with the given relative segments, escaping each one.
func (c *Client) itemPath(parts ...string) string {
	segments := []string{}
	for _, p := range append([]string{c.rootFolder}, parts...) {
		for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
			if seg = strings.TrimSpace(seg); seg != "" {
				segments = append(segments, url.PathEscape(seg))
			}
		}
	}
	return strings.Join(segments, "/")
}

func (c *Client) itemURL(parts ...string) string {
	return c.baseURL + c.driveRoot + "/root:/" + c.itemPath(parts...)
}

func (c *Client) childrenURL(folder string) string {
	return c.itemURL(folder) + ":/children"
}

// MediaStore adapts the client to media.StorageProvider.
func (c *Client) MediaStore() media.StorageProvider {
	return mediaStore{client: c}
}

type mediaStore struct {
	client *Client
}

func (s mediaStore) Upload(ctx context.Context, content []byte, name, folder string) (media.StoredObject, error) {
	item, err := s.client.Upload(ctx, content, name, folder)
	if err != nil {
		return media.StoredObject{}, err
	}
	return media.StoredObject{ID: item.ID, Name: item.Name, WebURL: item.WebURL, Size: item.Size}, nil
}
