package domain

import (
	"net/url"
	"path"
	"time"
)

// RoomURL is the full Daily room URL. It keys every piece of per-room state.
type RoomURL string

type Room struct {
	Name        string
	URL         RoomURL
	SIPEndpoint string
}

// RoomParams is the dial-in room configuration sent to the provisioner.
type RoomParams struct {
	SIPDisplayName string
	Video          bool
	SIPMode        string
	NumEndpoints   int
	Expiry         time.Duration
}

const SIPModeDialIn = "dial-in"

// DialInParams returns the audio-only, single-endpoint SIP dial-in configuration.
func DialInParams(displayName string, expiry time.Duration) RoomParams {
	return RoomParams{
		SIPDisplayName: displayName,
		Video:          false,
		SIPMode:        SIPModeDialIn,
		NumEndpoints:   1,
		Expiry:         expiry,
	}
}

// Name returns the last path segment of the URL, which Daily uses as the room name.
func (u RoomURL) Name() string {
	parsed, err := url.Parse(string(u))
	if err != nil || parsed.Path == "" {
		return path.Base(string(u))
	}
	return path.Base(parsed.Path)
}
