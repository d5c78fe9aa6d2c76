package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/pkg/models"
)

const (
	defaultAPIURL      = "https://api.spotify.com/v1"
	defaultAccountsURL = "https://accounts.spotify.com"

	scopes = "user-read-private user-read-email playlist-read-private user-top-read streaming user-read-playback-state user-modify-playback-state"
)

// Client talks to the Spotify Web API. It implements core.Player and
// core.AuthProvider.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string
	apiURL       string
	accountsURL  string
	httpClient   *http.Client
	now          func() time.Time
}

var (
	_ core.Player       = (*Client)(nil)
	_ core.AuthProvider = (*Client)(nil)
)

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

type Track struct {
	ID       string   `json:"id"`
	URI      string   `json:"uri"`
	Name     string   `json:"name"`
	Artists  []Artist `json:"artists"`
	Duration int      `json:"duration_ms"`
	Album    Album    `json:"album"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type TopTracksResponse struct {
	Items []Track `json:"items"`
}

type PlaylistTracksResponse struct {
	Items []struct {
		Track *Track `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}

type PlayerResponse struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMs int    `json:"progress_ms"`
	Item       *Track `json:"item"`
	Context    *struct {
		URI string `json:"uri"`
	} `json:"context"`
}

func NewClient(clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		apiURL:       defaultAPIURL,
		accountsURL:  defaultAccountsURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
}

func (c *Client) GetAuthURL(state string) string {
	params := url.Values{}
	params.Add("client_id", c.clientID)
	params.Add("response_type", "code")
	params.Add("redirect_uri", c.redirectURI)
	params.Add("scope", scopes)
	params.Add("state", state)

	return c.accountsURL + "/authorize?" + params.Encode()
}

// ExchangeCode trades an authorization code for a token pair. An empty
// redirectURI falls back to the configured one.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*core.TokenPair, error) {
	if redirectURI == "" {
		redirectURI = c.redirectURI
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)

	return c.doTokenRequest(ctx, data)
}

// Refresh exchanges the refresh token for a new access token. Spotify does
// not always rotate the refresh token; when it does not, the returned pair
// carries the one passed in.
func (c *Client) Refresh(ctx context.Context, _, refreshToken string) (*core.TokenPair, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	pair, err := c.doTokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

func (c *Client) doTokenRequest(ctx context.Context, data url.Values) (*core.TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+"/api/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Add("Authorization", "Basic "+auth)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	var token TokenResponse
	if _, err := c.send(req, "token", &token); err != nil {
		// the accounts service answers a bad grant with 400
		if errs.IsUnprocessable(err) {
			return nil, errs.Wrap(errs.KindUnauthorized, err, "spotify: token grant rejected")
		}
		return nil, err
	}

	log.Debug().Str("module", "spotify").Int("expires_in", token.ExpiresIn).Msg("token issued")
	return &core.TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}, nil
}

func (c *Client) GetCurrentPlayback(ctx context.Context, accessToken string) (*core.Playback, error) {
	req, err := c.apiRequest(ctx, http.MethodGet, "/me/player", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var state PlayerResponse
	status, err := c.send(req, "player state", &state)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || state.Item == nil {
		return nil, nil
	}

	pb := &core.Playback{
		URI:        state.Item.URI,
		ProgressMs: state.ProgressMs,
		IsPlaying:  state.IsPlaying,
		ObservedAt: c.now(),
	}
	if state.Context != nil {
		pb.ContextURI = state.Context.URI
	}
	return pb, nil
}

func (c *Client) Play(ctx context.Context, accessToken, trackURI string) error {
	body, err := json.Marshal(map[string]any{"uris": []string{trackURI}})
	if err != nil {
		return err
	}

	req, err := c.apiRequest(ctx, http.MethodPut, "/me/player/play", accessToken, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")

	_, err = c.send(req, "play", nil)
	return err
}

func (c *Client) Enqueue(ctx context.Context, accessToken, trackURI string) error {
	params := url.Values{}
	params.Add("uri", trackURI)

	req, err := c.apiRequest(ctx, http.MethodPost, "/me/player/queue?"+params.Encode(), accessToken, nil)
	if err != nil {
		return err
	}

	_, err = c.send(req, "enqueue", nil)
	return err
}

// Skip advances the owner's player. It reports false when Spotify refused
// the skip; only an invalid credential is returned as an error.
func (c *Client) Skip(ctx context.Context, accessToken string) (bool, error) {
	req, err := c.apiRequest(ctx, http.MethodPost, "/me/player/next", accessToken, nil)
	if err != nil {
		return false, err
	}

	if _, err := c.send(req, "skip", nil); err != nil {
		if errs.IsUnauthorized(err) {
			return false, err
		}
		log.Warn().Str("module", "spotify").Err(err).Msg("skip refused")
		return false, nil
	}
	return true, nil
}

func (c *Client) GetTopTracks(ctx context.Context, accessToken string) ([]models.Track, error) {
	params := url.Values{}
	params.Add("time_range", "short_term")
	params.Add("limit", "50")

	req, err := c.apiRequest(ctx, http.MethodGet, "/me/top/tracks?"+params.Encode(), accessToken, nil)
	if err != nil {
		return nil, err
	}

	var resp TopTracksResponse
	if _, err := c.send(req, "top tracks", &resp); err != nil {
		return nil, err
	}
	return toModels(resp.Items), nil
}

// GetPlaylistTracks follows the playlist's pagination until every track has
// been read. Local files and removed tracks carry no id and are skipped.
func (c *Client) GetPlaylistTracks(ctx context.Context, accessToken, playlistID string) ([]models.Track, error) {
	params := url.Values{}
	params.Add("limit", "100")
	next := c.apiURL + "/playlists/" + url.PathEscape(playlistID) + "/tracks?" + params.Encode()

	var tracks []Track
	for next != "" {
		req, err := c.newRequest(ctx, http.MethodGet, next, accessToken, nil)
		if err != nil {
			return nil, err
		}

		var page PlaylistTracksResponse
		if _, err := c.send(req, "playlist tracks", &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.Track != nil && item.Track.ID != "" {
				tracks = append(tracks, *item.Track)
			}
		}
		next = page.Next
	}
	return toModels(tracks), nil
}

func (c *Client) GetProfile(ctx context.Context, accessToken string) (*core.Profile, error) {
	req, err := c.apiRequest(ctx, http.MethodGet, "/me", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var profile core.Profile
	if _, err := c.send(req, "profile", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) apiRequest(ctx context.Context, method, path, accessToken string, body io.Reader) (*http.Request, error) {
	return c.newRequest(ctx, method, c.apiURL+path, accessToken, body)
}

func (c *Client) newRequest(ctx context.Context, method, rawURL, accessToken string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Authorization", "Bearer "+accessToken)
	return req, nil
}

// send executes req and decodes a JSON body into out when one is present.
// Status codes are mapped onto error kinds: 401 is Unauthorized, 404 is
// NotFound (Spotify's "no active device"), anything else outside 2xx is
// Unprocessable.
func (c *Client) send(req *http.Request, what string, out any) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("spotify: %s request failed: %w", what, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, errs.Unauthorized("spotify: %s request unauthorized", what)
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, errs.NotFound("spotify: %s request found nothing", what)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp.StatusCode, errs.Unprocessable("spotify: %s request failed with status %d", what, resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return resp.StatusCode, nil
		}
		return resp.StatusCode, fmt.Errorf("spotify: failed to decode %s response: %w", what, err)
	}
	return resp.StatusCode, nil
}

func toModels(in []Track) []models.Track {
	out := make([]models.Track, 0, len(in))
	for _, t := range in {
		names := make([]string, len(t.Artists))
		for i, a := range t.Artists {
			names[i] = a.Name
		}
		var image string
		if len(t.Album.Images) > 0 {
			image = t.Album.Images[0].URL
		}
		out = append(out, models.Track{
			ID:         t.ID,
			Name:       t.Name,
			Artists:    strings.Join(names, ", "),
			DurationMs: t.Duration,
			Image:      image,
		})
	}
	return out
}
