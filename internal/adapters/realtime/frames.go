package realtime

import (
	"github.com/goccy/go-json"
)

const (
	eventAuth       = "auth"
	eventAuthOK     = "auth:ok"
	eventAuthUpdate = "auth:update"
)

// Frame is the envelope of every message on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
}

type authPayload struct {
	Token string `json:"token"`
}

type rotatedPayload struct {
	Token        string `json:"token"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (p rotatedPayload) accessToken() string {
	if p.AccessToken != "" {
		return p.AccessToken
	}
	return p.Token
}

func encodeFrame(event string, payload any, id string) ([]byte, error) {
	frame := Frame{Event: event, ID: id}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}

func decodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, err
	}
	return frame, nil
}
