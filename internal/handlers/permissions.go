package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const permissionTimeout = 10 * time.Second

// ErrPermissionService wraps any failure to get an answer from the
// permission service.
var ErrPermissionService = errors.New("permission service failed")

type permissionRequest struct {
	IDs  []string `json:"ids"`
	Mode string   `json:"mode"`
}

type permissionResponse struct {
	Allowed []string `json:"allowed"`
}

// permissionClient asks an external service which ids the caller may
// download. The caller's Authorization header is forwarded.
type permissionClient struct {
	url    string
	client *http.Client
}

func newPermissionClient(url string, client *http.Client) *permissionClient {
	if client == nil {
		client = &http.Client{Timeout: permissionTimeout}
	}
	return &permissionClient{url: url, client: client}
}

// Allowed returns the subset of ids the service permits.
func (p *permissionClient) Allowed(ctx context.Context, authorization, mode string, ids []string) (map[string]bool, error) {
	body, err := json.Marshal(permissionRequest{IDs: ids, Mode: mode})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, permissionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrPermissionService, resp.StatusCode)
	}

	var decoded permissionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrPermissionService, err)
	}

	allowed := make(map[string]bool, len(decoded.Allowed))
	for _, id := range decoded.Allowed {
		allowed[id] = true
	}
	return allowed, nil
}
