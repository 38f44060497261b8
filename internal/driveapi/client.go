package driveapi

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imroc/req/v3"
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	AccessToken string
	UserAgent   string

	// ListingCacheSize bounds the directory-listing cache; 0 disables it.
	ListingCacheSize int
}

// Client is the abstract drive RPC client; every endpoint call takes a
// context and returns either a decoded value or an *APIError.
type Client struct {
	http *req.Client

	listingCache *lru.Cache[string, *ListPage]
}

// New builds a Client against cfg, modeled on the teacher SDK's client
// construction (sdk.go: TLS floor, retry policy, common headers/error
// result).
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("driveapi: base URL is required")
	}

	http := req.C().
		SetBaseURL(cfg.BaseURL).
		SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS13}).
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(time.Second).
		SetCommonErrorResult(&APIError{}).
		SetUserAgent(firstNonEmpty(cfg.UserAgent, "syncengine-driveapi"))

	if cfg.AccessToken != "" {
		http.SetCommonBearerAuthToken(cfg.AccessToken)
	}

	c := &Client{http: http}

	if cfg.ListingCacheSize > 0 {
		cache, err := lru.New[string, *ListPage](cfg.ListingCacheSize)
		if err != nil {
			return nil, fmt.Errorf("driveapi: listing cache: %w", err)
		}
		c.listingCache = cache
	}

	return c, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// apiErr extracts the decoded APIError from a response whose status
// indicates failure, falling back to a bare status-only error.
func apiErr(resp *req.Response, err error) error {
	if err != nil {
		return fmt.Errorf("driveapi: %w", err)
	}
	if resp.IsErrorState() {
		if e, ok := resp.ErrorResult().(*APIError); ok && e != nil {
			e.Status = resp.StatusCode
			return e
		}
		return &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	return nil
}

// GetFile returns the metadata for one remote object by id.
func (c *Client) GetFile(ctx context.Context, id string) (*FileInfo, error) {
	var info FileInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetSuccessResult(&info).
		Get("/files/{id}")
	if e := apiErr(resp, err); e != nil {
		return nil, e
	}
	return &info, nil
}

// ListChildren pages through id's children, cursor == "" for the first
// page; resp.NextCursor == "" means the listing is exhausted.
func (c *Client) ListChildren(ctx context.Context, id, cursor string) (*ListPage, error) {
	cacheKey := id + "\x00" + cursor
	if c.listingCache != nil {
		if page, ok := c.listingCache.Get(cacheKey); ok {
			return page, nil
		}
	}

	var page ListPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetQueryParam("cursor", cursor).
		SetSuccessResult(&page).
		Get("/files/{id}/children")
	if e := apiErr(resp, err); e != nil {
		return nil, e
	}

	if c.listingCache != nil {
		c.listingCache.Add(cacheKey, &page)
	}
	return &page, nil
}

// InvalidateListing drops any cached page for id, used after a mutation
// that changes id's children.
func (c *Client) InvalidateListing(id string) {
	if c.listingCache == nil {
		return
	}
	for _, key := range c.listingCache.Keys() {
		if len(key) > len(id) && key[:len(id)] == id && key[len(id)] == 0 {
			c.listingCache.Remove(key)
		}
	}
}

// Download streams id's current content; the caller must Close the body.
func (c *Client) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get("/files/{id}/content")
	if e := apiErr(resp, err); e != nil {
		return nil, e
	}
	return resp.Body, nil
}

// Move reparents id under newParentID without touching its name.
func (c *Client) Move(ctx context.Context, id, newParentID string) (*FileInfo, error) {
	var info FileInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetBody(map[string]string{"parent_id": newParentID}).
		SetSuccessResult(&info).
		Post("/files/{id}/move")
	if e := apiErr(resp, err); e != nil {
		return nil, e
	}
	c.InvalidateListing(newParentID)
	return &info, nil
}

// Rename changes id's name in place.
func (c *Client) Rename(ctx context.Context, id, newName string) (*FileInfo, error) {
	var info FileInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetBody(map[string]string{"name": newName}).
		SetSuccessResult(&info).
		Post("/files/{id}/rename")
	if e := apiErr(resp, err); e != nil {
		return nil, e
	}
	return &info, nil
}

// Copy duplicates sourceID under destParentID, returning the new object.
func (c *Client) Copy(ctx context.Context, sourceID, destParentID string) (*FileInfo, error) {
	var info FileInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"source_id": sourceID, "dest_parent_id": destParentID}).
		SetSuccessResult(&info).
		Post("/files/copy")
	if e := apiErr(resp, err); e != nil {
		return nil, e
	}
	c.InvalidateListing(destParentID)
	return &info, nil
}

// Delete removes id permanently.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Delete("/files/{id}")
	return apiErr(resp, err)
}

// CreateUploadSession starts a chunked upload for a new or replaced file.
func (c *Client) CreateUploadSession(ctx context.Context, params CreateUploadParams) (*UploadSession, error) {
	var session UploadSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&session).
		Post("/files/upload_session")
	if e := apiErr(resp, err); e != nil {
		return nil, e
	}
	return &session, nil
}

// UploadChunk uploads one chunk of sessionID's content at offset.
func (c *Client) UploadChunk(ctx context.Context, sessionID string, offset int64, chunk io.Reader) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetHeader("Content-Range", fmt.Sprintf("bytes %d-", offset)).
		SetBody(chunk).
		Put("/files/upload_session/{id}/chunk")
	return apiErr(resp, err)
}

// FinishUpload closes sessionID and returns the finished file's metadata.
func (c *Client) FinishUpload(ctx context.Context, sessionID string) (*FileInfo, error) {
	var info FileInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetSuccessResult(&info).
		Post("/files/upload_session/{id}/finish")
	if e := apiErr(resp, err); e != nil {
		return nil, e
	}
	c.InvalidateListing(info.ParentID)
	return &info, nil
}
