package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// defaultTimeout is the per-request timeout for awaited calls.
	defaultTimeout = 15 * time.Second
	// logoutTimeout bounds the fire-and-forget teardown notify so it can
	// never hold up process exit for long.
	logoutTimeout = 2 * time.Second
)

// ErrRejected marks an application-level rejection: the HTTP exchange
// succeeded but the server answered ok=false (or success=false for the
// upload endpoint). The server-provided message is wrapped around it.
var ErrRejected = errors.New("rejected by server")

func rejection(serverMsg string) error {
	if serverMsg == "" {
		serverMsg = "request failed"
	}
	return fmt.Errorf("%w: %s", ErrRejected, serverMsg)
}

// Client talks to the chat server's HTTP API. All awaited methods take a
// context; LogoutNotify deliberately does not (it runs at teardown, after
// contexts are being torn down).
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a client for the given base URL ("http://host:port", no
// trailing slash required).
func New(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The server answers rejections with a JSON body and a non-200 status;
	// decode either way and let the ok flag decide.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", path, resp.StatusCode, err)
	}
	return nil
}

type assignKeyResponse struct {
	Ok       bool   `json:"ok"`
	Key      string `json:"key"`
	Existing bool   `json:"existing"`
	Error    string `json:"error"`
}

// AssignKey requests a server-assigned encryption key for this user.
// existing reports whether the server reused a previously known key.
func (c *Client) AssignKey(ctx context.Context, userID, username string) (key string, existing bool, err error) {
	var resp assignKeyResponse
	payload := map[string]string{"userId": userID, "username": username}
	if err := c.postJSON(ctx, "/api/assign_key", payload, &resp); err != nil {
		return "", false, err
	}
	if !resp.Ok || resp.Key == "" {
		return "", false, rejection(resp.Error)
	}
	return resp.Key, resp.Existing, nil
}

type okResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error"`
}

// SendText posts one text message to the shared stream.
func (c *Client) SendText(ctx context.Context, userID, username, content string) error {
	var resp okResponse
	payload := map[string]string{"userId": userID, "username": username, "content": content}
	if err := c.postJSON(ctx, "/api/send_message", payload, &resp); err != nil {
		return err
	}
	if !resp.Ok {
		return rejection(resp.Error)
	}
	return nil
}

// SendImage posts one image message (by URL) to the shared stream.
func (c *Client) SendImage(ctx context.Context, userID, username, imageURL string) error {
	var resp okResponse
	payload := map[string]string{"userId": userID, "username": username, "url": imageURL}
	if err := c.postJSON(ctx, "/api/send_image", payload, &resp); err != nil {
		return err
	}
	if !resp.Ok {
		return rejection(resp.Error)
	}
	return nil
}

type pollResponse struct {
	Ok         bool       `json:"ok"`
	Messages   []*Message `json:"messages"`
	ServerTime int64      `json:"serverTime"`
	Error      string     `json:"error"`
}

// PollMessages fetches messages strictly newer than since (ms watermark),
// along with the server's current time.
func (c *Client) PollMessages(ctx context.Context, since int64) ([]*Message, int64, error) {
	u := c.baseURL + "/api/messages?since=" + strconv.FormatInt(since, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build poll request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("poll messages: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("decode poll response: %w", err)
	}
	if !body.Ok {
		return nil, 0, rejection(body.Error)
	}
	return body.Messages, body.ServerTime, nil
}

type heartbeatResponse struct {
	Ok    bool            `json:"ok"`
	Users []PresenceEntry `json:"users"`
	Error string          `json:"error"`
}

// Heartbeat announces liveness and returns the authoritative roster
// snapshot. The caller must treat the snapshot as a full replacement.
func (c *Client) Heartbeat(ctx context.Context, userID, username string) ([]PresenceEntry, error) {
	var resp heartbeatResponse
	payload := map[string]string{"userId": userID, "username": username}
	if err := c.postJSON(ctx, "/api/heartbeat", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Ok {
		return nil, rejection(resp.Error)
	}
	return resp.Users, nil
}

type encodeResponse struct {
	Ok             bool     `json:"ok"`
	Images         []string `json:"images"`
	InitializedNow bool     `json:"initializedNow"`
	Error          string   `json:"error"`
}

// EncodeText asks the server to encode text under key into an ordered
// image URL sequence. initializedNow reports a first use of the key.
func (c *Client) EncodeText(ctx context.Context, key, text string) (images []string, initializedNow bool, err error) {
	var resp encodeResponse
	payload := map[string]string{"key": key, "text": text}
	if err := c.postJSON(ctx, "/api/encrypt_text", payload, &resp); err != nil {
		return nil, false, err
	}
	if !resp.Ok {
		return nil, false, rejection(resp.Error)
	}
	return resp.Images, resp.InitializedNow, nil
}

type decodeResponse struct {
	Ok    bool   `json:"ok"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// DecodeImages submits the key plus the ordered image batch and returns
// the decoded text. The multipart field order carries the decoding order,
// so images are written strictly in slice order.
func (c *Client) DecodeImages(ctx context.Context, key string, images []ImageFile) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("key", key); err != nil {
		return "", fmt.Errorf("write key field: %w", err)
	}
	for _, img := range images {
		part, err := w.CreateFormFile("images", img.Name)
		if err != nil {
			return "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return "", fmt.Errorf("write image part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/decrypt_images", &buf)
	if err != nil {
		return "", fmt.Errorf("build decode request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("decode images: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body decodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !body.Ok {
		return "", rejection(body.Error)
	}
	return body.Text, nil
}

type uploadResponse struct {
	// The upload endpoint predates the ok-flag convention and answers
	// with success/url/error instead. Do not conflate the two.
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

// UploadImage uploads a single image file and returns the URL the server
// stored it under.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("write image part: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if !body.Success {
		return "", rejection(body.Error)
	}
	return body.URL, nil
}

// LogoutNotify tells the server this user is leaving. Best effort, fired
// exactly once at teardown: a short independent timeout, no retry, and
// the result is ignored beyond a log line.
func (c *Client) LogoutNotify(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"userId": userID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/logout", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("logout notify failed", zap.Error(err))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ResolveImageURL turns a server-relative image path into an absolute URL.
func (c *Client) ResolveImageURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	u, err := url.JoinPath(c.baseURL, ref)
	if err != nil {
		return ref
	}
	return u
}
