// Package parlor provides a client for the parlor chat service.
package parlor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// SessionCookie is the name of the credential cookie issued by /login.
const SessionCookie = "parlor_session"

// Client is a parlor API client. After a successful Login it carries the
// session cookie on every request, including websocket upgrades.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new parlor client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Message is one chat message.
type Message struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Room is a chat room; Messages holds the server's unflushed buffer when
// returned from Rooms.
type Room struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Image    string    `json:"image,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// Conversation is one durable block of messages.
type Conversation struct {
	RoomID    string    `json:"roomId"`
	Timestamp int64     `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// Frame is a websocket message: Username is empty on send and filled in by
// the server on receive.
type Frame struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

// Login authenticates and stores the session token for later requests.
func (c *Client) Login(username, password string) error {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	req, err := http.NewRequest("POST", c.BaseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// The server answers a login with a redirect either way; the cookie
	// is the actual success signal.
	resp, err := c.noRedirect().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookie && cookie.Value != "" {
			c.Token = cookie.Value
			return nil
		}
	}
	return fmt.Errorf("login rejected for %q", username)
}

// Logout invalidates the session server-side and clears the local token.
// The server answers with a redirect to the login page.
func (c *Client) Logout() error {
	req, err := http.NewRequest("GET", c.BaseURL+"/logout", nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.Token})
	}

	resp, err := c.noRedirect().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	c.Token = ""
	return nil
}

// noRedirect returns a copy of the HTTP client that reports redirects to
// the caller instead of following them. The caller's own client keeps its
// redirect policy.
func (c *Client) noRedirect() *http.Client {
	client := *c.HTTPClient
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &client
}

// Rooms lists every room, annotated with its pending buffer.
func (c *Client) Rooms() ([]Room, error) {
	body, err := c.doRequest("GET", "/chat", nil)
	if err != nil {
		return nil, err
	}

	var rooms []Room
	if err := json.Unmarshal(body, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Room fetches a single room.
func (c *Client) Room(roomID string) (*Room, error) {
	body, err := c.doRequest("GET", "/chat/"+roomID, nil)
	if err != nil {
		return nil, err
	}

	var room Room
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateRoom creates a room with the given name and optional image URI.
func (c *Client) CreateRoom(name, image string) (*Room, error) {
	reqBody, _ := json.Marshal(map[string]string{"name": name, "image": image})
	body, err := c.doRequest("POST", "/chat", reqBody)
	if err != nil {
		return nil, err
	}

	var room Room
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ConversationBefore fetches the newest conversation block strictly older
// than the before cursor (Unix milliseconds). It returns nil when the
// room's history is exhausted.
func (c *Client) ConversationBefore(roomID string, before int64) (*Conversation, error) {
	path := fmt.Sprintf("/chat/%s/messages?before=%d", roomID, before)
	body, err := c.doRequest("GET", path, nil)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Profile returns the username bound to the current session.
func (c *Client) Profile() (string, error) {
	body, err := c.doRequest("GET", "/profile", nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.Username, nil
}

// Connect opens the realtime websocket. The caller owns the returned
// connection and reads Frames from it.
func (c *Client) Connect(wsURL string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Cookie", SessionCookie+"="+c.Token)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("websocket refused: session invalid")
		}
		return nil, err
	}
	return conn, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("parlor error %d: %s", e.Status, e.Message)
}

// doRequest performs an HTTP request with the session cookie attached.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.Token})
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	return respBody, nil
}
