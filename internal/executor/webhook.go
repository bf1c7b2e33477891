package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"magnet-playlets/internal/domain"
)

const webhookEvent = "playlet.action"

type webhookPayload struct {
	Event       string        `json:"event"`
	TorrentID   string        `json:"torrent_id"`
	TorrentName string        `json:"torrent_name"`
	Files       []webhookFile `json:"files"`
}

type webhookFile struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Length int64  `json:"length"`
}

type webhookExecutor struct {
	client *http.Client
	secret []byte
}

func (e *webhookExecutor) Execute(ctx context.Context, a domain.Action, in Input) error {
	opts := a.Webhook
	if opts == nil {
		return missingOptions(a.Type)
	}
	if strings.TrimSpace(opts.URL) == "" {
		return errors.New("webhook url is empty")
	}
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodPost
	}

	payload := webhookPayload{
		Event:       webhookEvent,
		TorrentID:   in.TorrentID,
		TorrentName: in.TorrentName,
		Files:       make([]webhookFile, len(in.Files)),
	}
	for i, f := range in.Files {
		payload.Files[i] = webhookFile{Index: f.Index, Name: f.Name, Path: f.Path, Length: f.Length}
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode webhook payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, opts.URL, body)
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(e.secret) > 0 {
		token, err := e.sign(in.TorrentID)
		if err != nil {
			return fmt.Errorf("sign webhook request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (e *webhookExecutor) sign(torrentID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "magnet-playlets",
		Subject:   torrentID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
}
