package faceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client calls the face enrollment microservice. This system never touches
// embeddings or images itself; it only asks whether a user has an enrolled
// template before allowing a scan to start.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, every user counts as enrolled — dev
// mode for running without the face service.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health checks service availability.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

// HasEnrolledTemplate reports whether the user has a stored face template.
func (c *Client) HasEnrolledTemplate(ctx context.Context, userID string) (bool, error) {
	if c.Skip {
		return true, nil
	}
	endpoint := c.BaseURL + "/v1/templates/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return false, nil
	case http.StatusOK:
		var body struct {
			Enrolled bool `json:"enrolled"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, fmt.Errorf("decode template response: %w", err)
		}
		return body.Enrolled, nil
	default:
		return false, fmt.Errorf("face service returned %s", resp.Status)
	}
}
