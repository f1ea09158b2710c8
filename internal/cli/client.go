package cli

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
	"time"

	"kickoff/internal/game"
	"kickoff/internal/live"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (c *Client) CreateTeam(ctx context.Context, name, tier string) (*game.Team, error) {
	var out game.Team
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/teams", "", map[string]any{
		"name": name,
		"tier": tier,
	}, &out)
	return &out, err
}

func (c *Client) Team(ctx context.Context, teamID uuid.UUID) (*game.Team, error) {
	var out game.Team
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/teams/"+teamID.String(), "", nil, &out)
	return &out, err
}

func (c *Client) Facilities(ctx context.Context, teamID uuid.UUID) ([]game.FacilityStatus, error) {
	var out struct {
		Facilities []game.FacilityStatus `json:"facilities"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/teams/"+teamID.String()+"/facilities", "", nil, &out)
	return out.Facilities, err
}

func (c *Client) Collect(ctx context.Context, teamID uuid.UUID, ft game.FacilityType) (game.CollectResult, error) {
	var out game.CollectResult
	path := fmt.Sprintf("/v1/teams/%s/facilities/%s/collect", teamID, url.PathEscape(string(ft)))
	err := c.jsonRequest(ctx, http.MethodPost, path, "", nil, &out)
	return out, err
}

func (c *Client) Upgrade(ctx context.Context, teamID uuid.UUID, ft game.FacilityType) (game.UpgradeResult, error) {
	var out game.UpgradeResult
	path := fmt.Sprintf("/v1/teams/%s/facilities/%s/upgrade", teamID, url.PathEscape(string(ft)))
	err := c.jsonRequest(ctx, http.MethodPost, path, "", nil, &out)
	return out, err
}

func (c *Client) Recruit(ctx context.Context, teamID uuid.UUID) (game.Player, error) {
	var out game.Player
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/teams/"+teamID.String()+"/players/recruit", "", nil, &out)
	return out, err
}

func (c *Client) Sign(ctx context.Context, teamID uuid.UUID, in game.SigningInput) (game.Player, error) {
	var out game.Player
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/teams/"+teamID.String()+"/players/sign", "", in, &out)
	return out, err
}

func (c *Client) Fire(ctx context.Context, teamID, playerID uuid.UUID) (int, error) {
	var out struct {
		Remaining int `json:"remaining_fires"`
	}
	path := fmt.Sprintf("/v1/teams/%s/players/%s", teamID, playerID)
	err := c.jsonRequest(ctx, http.MethodDelete, path, "", nil, &out)
	return out.Remaining, err
}

func (c *Client) RenewPlayer(ctx context.Context, teamID, playerID uuid.UUID) (game.RenewalResult, error) {
	var out game.RenewalResult
	path := fmt.Sprintf("/v1/teams/%s/players/%s/renew", teamID, playerID)
	err := c.jsonRequest(ctx, http.MethodPost, path, "", nil, &out)
	return out, err
}

func (c *Client) RenewCoach(ctx context.Context, teamID uuid.UUID) (game.RenewalResult, error) {
	var out game.RenewalResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/teams/"+teamID.String()+"/coach/renew", "", nil, &out)
	return out, err
}

func (c *Client) RegisterLeague(ctx context.Context, teamID uuid.UUID, tier string) (*game.Team, error) {
	var out game.Team
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/teams/"+teamID.String()+"/league", "", map[string]any{
		"tier": tier,
	}, &out)
	return &out, err
}

func (c *Client) LeagueTable(ctx context.Context, tier string) ([]game.LeagueRow, error) {
	var out struct {
		Rows []game.LeagueRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leagues/"+url.PathEscape(tier)+"/table", "", nil, &out)
	return out.Rows, err
}

func (c *Client) CreateMatch(ctx context.Context, home, away uuid.UUID) (*game.Match, error) {
	var out game.Match
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/matches", "", map[string]any{
		"home_team_id": home,
		"away_team_id": away,
	}, &out)
	return &out, err
}

func (c *Client) LiveMatches(ctx context.Context, limit int) ([]*game.Match, error) {
	var out struct {
		Matches []*game.Match `json:"matches"`
	}
	path := "/v1/matches/live"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, "", nil, &out)
	return out.Matches, err
}

func (c *Client) Match(ctx context.Context, matchID uuid.UUID) (*game.Match, error) {
	var out game.Match
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/matches/"+matchID.String(), "", nil, &out)
	return &out, err
}

func (c *Client) RunJob(ctx context.Context, adminToken, name string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/admin/jobs/"+url.PathEscape(name)+"/run", adminToken, nil, nil)
}

// WatchMatch follows the live feed of a match and calls fn for every
// message until the match finishes, fn fails or ctx is done.
func (c *Client) WatchMatch(ctx context.Context, matchID uuid.UUID, fn func(live.Message) error) error {
	wsURL, err := websocketURL(c.BaseURL, "/v1/matches/"+matchID.String()+"/live")
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: "live feed refused"}
		}
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg live.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
		if finished(msg) {
			return nil
		}
	}
}

func finished(msg live.Message) bool {
	p, ok := msg.Payload.(map[string]any)
	if !ok {
		return false
	}
	done, _ := p["is_finished"].(bool)
	return done
}

func websocketURL(base, path string) (string, error) {
	u, err := url.Parse(base + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func (c *Client) jsonRequest(ctx context.Context, method, path, bearer string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
