// Package tts implements the speech synthesis provider over the vendor's
// websocket API. One connection is dialed per request; audio arrives as
// base64 chunks and is assembled into a single MP3 payload.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/marsdhp/sme-interview/backend/internal/config"
	"github.com/marsdhp/sme-interview/backend/internal/provider"
)

// Client speaks the synthesis provider's websocket protocol. It implements
// provider.Synthesizer.
type Client struct {
	cfg    config.TTSConfig
	dialer *websocket.Dialer
}

// NewClient creates a synthesis client from configuration.
func NewClient(cfg config.TTSConfig) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

type synthesisRequest struct {
	ReqID string `json:"reqid"`
	App   struct {
		AppID string `json:"appid"`
		Token string `json:"token"`
	} `json:"app"`
	ReqParams struct {
		Voice       string  `json:"voice"`
		Text        string  `json:"text"`
		Format      string  `json:"format"`
		SampleRate  int     `json:"sample_rate"`
		SpeedRatio  float64 `json:"speed_ratio,omitempty"`
		LanguageTag string  `json:"language,omitempty"`
	} `json:"req_params"`
}

// serverMessage is one frame from the synthesis stream. A negative sequence
// marks the final frame.
type serverMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// Synthesize converts text to MP3 audio at the given voice and rate.
func (c *Client) Synthesize(ctx context.Context, text, voiceName string, rate float64) (provider.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return provider.Audio{}, fmt.Errorf("synthesis text is empty")
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", c.cfg.AppID)
	header.Set("X-Api-Access-Key", c.cfg.AccessToken)
	header.Set("X-Api-Connect-Id", uuid.NewString())

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, header)
	if err != nil {
		return provider.Audio{}, fmt.Errorf("connect to synthesis endpoint: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			logrus.WithField("logid", logid).Debug("synthesis connection established")
		}
	}

	req := synthesisRequest{ReqID: uuid.NewString()}
	req.App.AppID = c.cfg.AppID
	req.App.Token = c.cfg.AccessToken
	req.ReqParams.Voice = voiceName
	req.ReqParams.Text = text
	req.ReqParams.Format = "mp3"
	req.ReqParams.SampleRate = c.cfg.SampleRate
	if rate > 0 && rate != 1.0 {
		req.ReqParams.SpeedRatio = rate
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return provider.Audio{}, fmt.Errorf("marshal synthesis request: %w", err)
	}

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return provider.Audio{}, fmt.Errorf("send synthesis request: %w", err)
	}

	var audio bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return provider.Audio{}, ctx.Err()
		default:
		}

		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			return provider.Audio{}, fmt.Errorf("read synthesis response: %w", err)
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return provider.Audio{}, fmt.Errorf("decode synthesis frame: %w", err)
		}

		if msg.Code != 0 && msg.Code != 3000 {
			return provider.Audio{}, fmt.Errorf("synthesis error %d: %s", msg.Code, msg.Message)
		}

		if msg.Data != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				return provider.Audio{}, fmt.Errorf("decode audio chunk: %w", err)
			}
			audio.Write(chunk)
		}

		if msg.Sequence < 0 {
			break
		}
	}

	if audio.Len() == 0 {
		return provider.Audio{}, fmt.Errorf("synthesis produced no audio")
	}

	return provider.Audio{Data: audio.Bytes(), ContentType: "audio/mpeg"}, nil
}
