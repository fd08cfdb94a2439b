// Package directory is the HTTP client for the room-persistence service.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/randomio/pair/internal/core"
	"github.com/randomio/pair/internal/domain"
)

const requestTimeout = 10 * time.Second

// Client talks to the directory's REST surface. It retains no state between
// calls.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: requestTimeout},
	}
}

type roomPayload struct {
	ID     domain.RoomID     `json:"_id"`
	Status domain.RoomStatus `json:"status"`
}

func (p roomPayload) room() domain.Room {
	return domain.Room{ID: p.ID, Status: p.Status}
}

type createResponse struct {
	Room     roomPayload `json:"room"`
	RTCToken string      `json:"rtcToken"`
	RTMToken string      `json:"rtmToken"`
}

type findResponse struct {
	Rooms    []roomPayload `json:"rooms"`
	RTCToken string        `json:"rtcToken"`
	RTMToken string        `json:"rtmToken"`
}

// CreateRoom registers a fresh room in a matchable state, owned by pid.
func (c *Client) CreateRoom(ctx context.Context, pid domain.ParticipantID) (*core.Created, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, c.roomsURL(pid), &resp); err != nil {
		return nil, err
	}
	return &core.Created{
		Room: resp.Room.room(),
		Creds: domain.Credentials{
			MediaToken:   resp.RTCToken,
			ChannelToken: resp.RTMToken,
		},
	}, nil
}

// FindMatch fetches rooms already waiting for a partner. An empty candidate
// list means "nobody is waiting, become the creator".
func (c *Client) FindMatch(ctx context.Context, pid domain.ParticipantID) (*core.Match, error) {
	var resp findResponse
	if err := c.do(ctx, http.MethodGet, c.roomsURL(pid), &resp); err != nil {
		return nil, err
	}
	match := &core.Match{
		Creds: domain.Credentials{
			MediaToken:   resp.RTCToken,
			ChannelToken: resp.RTMToken,
		},
	}
	for _, p := range resp.Rooms {
		match.Rooms = append(match.Rooms, p.room())
	}
	return match, nil
}

// ReleaseRoom tells the directory this client left the room so it becomes
// matchable again.
func (c *Client) ReleaseRoom(ctx context.Context, id domain.RoomID) error {
	u := fmt.Sprintf("%s/api/rooms/%s", c.base, url.PathEscape(string(id)))
	return c.do(ctx, http.MethodPut, u, nil)
}

func (c *Client) roomsURL(pid domain.ParticipantID) string {
	q := url.Values{}
	q.Set("userId", string(pid))
	return fmt.Sprintf("%s/api/rooms?%s", c.base, q.Encode())
}

func (c *Client) do(ctx context.Context, method, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", core.ErrDirectoryUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", core.ErrDirectoryUnavailable, method, u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", core.ErrDirectoryUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: http %d: %s", core.ErrDirectoryUnavailable, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", core.ErrDirectoryUnavailable, err)
	}
	return nil
}
