// Package ipfs uploads certificate images and metadata documents to an
// IPFS pinning service. With no service configured the client runs in
// simulated mode and derives deterministic content hashes locally, so
// the rest of the registry behaves identically in development.
package ipfs

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cert-registry/internal/circuitbreaker"
	"github.com/cert-registry/internal/config"
)

// Metadata is the document pinned for a certificate
type Metadata struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// UploadResult is the outcome of a pin operation
type UploadResult struct {
	Hash string `json:"hash"`
	URI  string `json:"uri"`
}

// Client talks to the pinning service through a circuit breaker
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	simulated  bool
}

// NewClient creates a client from config. An empty base URL enables
// simulated mode.
func NewClient(cfg *config.IPFSConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig("ipfs")),
		simulated:  cfg.BaseURL == "",
	}
}

// Simulated reports whether the client fakes uploads locally
func (c *Client) Simulated() bool {
	return c.simulated
}

// UploadImage pins raw image bytes and returns the content hash
func (c *Client) UploadImage(ctx context.Context, data []byte, filename string) (*UploadResult, error) {
	if c.simulated {
		return simulatedResult(data), nil
	}
	return c.post(ctx, "/upload/image", map[string]any{
		"filename": filename,
		"content":  data,
	})
}

// CreateMetadata pins a metadata document and returns its URI
func (c *Client) CreateMetadata(ctx context.Context, meta *Metadata) (*UploadResult, error) {
	body, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if c.simulated {
		return simulatedResult(body), nil
	}
	return c.post(ctx, "/metadata", map[string]any{
		"metadata": json.RawMessage(body),
	})
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (*UploadResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var result UploadResult
	err = c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("pinning service returned %d: %s", resp.StatusCode, string(data))
		}

		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, err
	}

	if result.URI == "" && result.Hash != "" {
		result.URI = "ipfs://" + result.Hash
	}
	return &result, nil
}

// simulatedResult derives a stable fake content hash so repeated uploads
// of the same bytes yield the same URI, matching real pinning behavior.
func simulatedResult(content []byte) *UploadResult {
	digest := crypto.Keccak256(content)
	hash := "Qm" + hex.EncodeToString(digest)[:44]
	return &UploadResult{
		Hash: hash,
		URI:  "ipfs://" + hash,
	}
}

// WaitForService polls the pinning service until it responds or the
// deadline passes. No-op in simulated mode.
func (c *Client) WaitForService(ctx context.Context, deadline time.Duration) error {
	if c.simulated {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("pinning service not reachable: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
