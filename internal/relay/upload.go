package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/faanross/stegocrypt/internal/chunker"
)

// Upload publishes a chunked carrier through a relay's HTTP API.
// baseURL is the API root, e.g. http://relay.example.com:8080.
func Upload(ctx context.Context, client *http.Client, baseURL string, msg *chunker.Message) (UploadResponse, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req := UploadRequest{
		MessageID: msg.Manifest.MessageID,
		Manifest:  msg.Manifest.String(),
		Chunks:    make(map[int]string, len(msg.Chunks)),
	}
	for _, c := range msg.Chunks {
		req.Chunks[int(c.Metadata.Sequence)] = c.Encoded
	}

	body, err := json.Marshal(req)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(baseURL, "/") + "/upload"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return UploadResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("HTTP upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusConflict {
			return UploadResponse{}, fmt.Errorf("%w: %s", ErrExists, strings.TrimSpace(string(msg)))
		}
		return UploadResponse{}, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var result UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return UploadResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return result, nil
}
