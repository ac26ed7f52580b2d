// Package signaling is the client side of the store-and-forward relay used to
// exchange connection offers, answers and candidates before a direct peer
// connection exists.
package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/sirupsen/logrus"
)

const requestTimeout = 10 * time.Second

// ErrRoomTaken is returned by ClaimRoom when another peer already owns the code.
var ErrRoomTaken = errors.New("room code already claimed")

// Client talks to the relay HTTP surface and runs the polling loops.
type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
	backoff BackoffConfig

	mu    sync.Mutex
	loops map[string]*pollLoop
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for relay diagnostics
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// WithBackoff overrides the adaptive polling parameters
func WithBackoff(cfg BackoffConfig) Option {
	return func(c *Client) { c.backoff = cfg }
}

// NewClient creates a relay client for the relay rooted at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		log:     logrus.StandardLogger(),
		backoff: DefaultBackoff,
		loops:   make(map[string]*pollLoop),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts a handshake message to the room. An empty recipientID broadcasts
// to every participant. Failures are reported as false; callers own retries.
func (c *Client) Send(ctx context.Context, roomID, senderID string, t models.SignalType, data any, recipientID string) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.WithError(err).WithField("type", t).Warn("Failed to marshal signaling payload")
		return false
	}

	req := models.PostMessageRequest{
		SenderID: senderID,
		Type:     t,
		Data:     raw,
	}
	if recipientID != "" {
		req.RecipientID = &recipientID
	}

	var resp models.PostMessageResponse
	if err := c.do(ctx, http.MethodPost, c.messagesURL(roomID), "", req, &resp); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"room_id": roomID,
			"type":    t,
		}).Warn("Failed to send signaling message")
		return false
	}
	return true
}

// Fetch returns the messages for peerID with a timestamp after since.
func (c *Client) Fetch(ctx context.Context, roomID, peerID string, since int64) ([]models.SignalingMessage, error) {
	q := url.Values{}
	q.Set("peerId", peerID)
	q.Set("since", strconv.FormatInt(since, 10))

	var resp models.MessagesResponse
	if err := c.do(ctx, http.MethodGet, c.messagesURL(roomID)+"?"+q.Encode(), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ClaimRoom registers peerID as the owner of roomID and returns the room
// token needed to clear the mailbox later.
func (c *Client) ClaimRoom(ctx context.Context, roomID, peerID string) (string, error) {
	var resp models.ClaimRoomResponse
	err := c.do(ctx, http.MethodPost, c.baseURL+"/rooms/"+url.PathEscape(roomID)+"/claim", "",
		models.ClaimRoomRequest{PeerID: peerID}, &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusConflict {
			return "", ErrRoomTaken
		}
		return "", err
	}
	return resp.Token, nil
}

// ClearRoom deletes the room's mailbox. It is best-effort cleanup.
func (c *Client) ClearRoom(ctx context.Context, roomID, token string) error {
	return c.do(ctx, http.MethodDelete, c.messagesURL(roomID), token, nil, nil)
}

func (c *Client) messagesURL(roomID string) string {
	return c.baseURL + "/rooms/" + url.PathEscape(roomID) + "/messages"
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.code, e.body)
}

func (c *Client) do(ctx context.Context, method, target, token string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode relay response: %w", err)
	}
	return nil
}
