// Package figma proxies node and image lookups to the Figma REST API so
// browser clients never handle Figma tokens in cross-origin requests.
// The caller supplies the access token per request and it is forwarded
// as the X-Figma-Token header, never stored.
package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	platformerrors "github.com/collabhq/collabd/internal/errors"
)

// DefaultBaseURL is the public Figma REST API.
const DefaultBaseURL = "https://api.figma.com/v1"

// Layer is one direct child of the requested node.
type Layer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Client calls the Figma API on behalf of platform users.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Figma proxy client. An empty baseURL uses the
// public API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Layers fetches the direct children of a node in a Figma file. A node
// without children yields an empty slice.
func (c *Client) Layers(ctx context.Context, fileKey, nodeID, accessToken string) ([]Layer, error) {
	if fileKey == "" || nodeID == "" || accessToken == "" {
		return nil, platformerrors.ErrValidation("fileKey, nodeId and accessToken are required")
	}

	endpoint := fmt.Sprintf("%s/files/%s/nodes?ids=%s", c.baseURL, url.PathEscape(fileKey), url.QueryEscape(nodeID))

	var payload struct {
		Nodes map[string]struct {
			Document struct {
				Children []Layer `json:"children"`
			} `json:"document"`
		} `json:"nodes"`
	}
	if err := c.get(ctx, endpoint, accessToken, &payload); err != nil {
		return nil, err
	}

	node, ok := payload.Nodes[nodeID]
	if !ok {
		return []Layer{}, nil
	}
	layers := node.Document.Children
	if layers == nil {
		layers = []Layer{}
	}
	return layers, nil
}

// Image fetches a rendered PNG URL for a node.
func (c *Client) Image(ctx context.Context, fileKey, nodeID, accessToken string) (string, error) {
	if fileKey == "" || nodeID == "" || accessToken == "" {
		return "", platformerrors.ErrValidation("fileKey, nodeId and accessToken are required")
	}

	endpoint := fmt.Sprintf("%s/images/%s?ids=%s&format=png", c.baseURL, url.PathEscape(fileKey), url.QueryEscape(nodeID))

	var payload struct {
		Images map[string]string `json:"images"`
	}
	if err := c.get(ctx, endpoint, accessToken, &payload); err != nil {
		return "", err
	}
	return payload.Images[nodeID], nil
}

func (c *Client) get(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return platformerrors.ErrInternal("build figma request", err)
	}
	req.Header.Set("X-Figma-Token", accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return platformerrors.ErrInternal("call figma api", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return platformerrors.ErrInternal("call figma api", fmt.Errorf("status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return platformerrors.ErrInternal("decode figma response", err)
	}
	return nil
}
