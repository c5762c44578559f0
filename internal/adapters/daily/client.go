// Package daily is a minimal client for the Daily REST API: dial-in rooms
// and meeting tokens.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/dialin/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultAPIURL = "https://api.daily.co/v1"

// maxErrorBody bounds how much of a failed response ends up in errors.
const maxErrorBody = 512

type Client struct {
	APIURL string
	APIKey string
	HTTP   *http.Client
	// Now is replaceable in tests.
	Now func() time.Time
}

func NewClient(apiURL, apiKey string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		APIURL: strings.TrimRight(apiURL, "/"),
		APIKey: apiKey,
		HTTP:   &http.Client{Timeout: 15 * time.Second},
		Now:    time.Now,
	}
}

type sipParams struct {
	DisplayName  string `json:"display_name"`
	Video        bool   `json:"video"`
	SIPMode      string `json:"sip_mode"`
	NumEndpoints int    `json:"num_endpoints"`
}

type roomProperties struct {
	Exp int64     `json:"exp,omitempty"`
	SIP sipParams `json:"sip"`
}

type createRoomRequest struct {
	Properties roomProperties `json:"properties"`
}

type roomResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Config struct {
		SIPURI *struct {
			Endpoint string `json:"endpoint"`
		} `json:"sip_uri"`
	} `json:"config"`
}

type tokenProperties struct {
	RoomName string `json:"room_name"`
	IsOwner  bool   `json:"is_owner"`
	Exp      int64  `json:"exp"`
}

type tokenRequest struct {
	Properties tokenProperties `json:"properties"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (c *Client) CreateRoom(ctx context.Context, params domain.RoomParams) (*domain.Room, error) {
	req := createRoomRequest{Properties: roomProperties{
		SIP: sipParams{
			DisplayName:  params.SIPDisplayName,
			Video:        params.Video,
			SIPMode:      params.SIPMode,
			NumEndpoints: params.NumEndpoints,
		},
	}}
	if params.Expiry > 0 {
		req.Properties.Exp = c.Now().Add(params.Expiry).Unix()
	}

	var resp roomResponse
	if err := c.post(ctx, "/rooms", req, &resp); err != nil {
		return nil, err
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("daily: room response has no url")
	}
	room := &domain.Room{Name: resp.Name, URL: domain.RoomURL(resp.URL)}
	if resp.Config.SIPURI != nil {
		room.SIPEndpoint = resp.Config.SIPURI.Endpoint
	}
	log.Info().Str("module", "adapters.daily").Str("room", resp.URL).Msg("room created")
	return room, nil
}

func (c *Client) GetToken(ctx context.Context, room domain.RoomURL, ttl time.Duration) (string, error) {
	req := tokenRequest{Properties: tokenProperties{
		RoomName: room.Name(),
		IsOwner:  true,
		Exp:      c.Now().Add(ttl).Unix(),
	}}
	var resp tokenResponse
	if err := c.post(ctx, "/meeting-tokens", req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("daily: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("daily: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("daily: %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return fmt.Errorf("daily: %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("daily: decode %s: %w", path, err)
	}
	return nil
}
