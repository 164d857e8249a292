package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pressgate/pressgate/pkg/models"
)

const defaultTimeout = 30 * time.Second

// Client talks to a remote content management system over its REST API and
// implements both Service and GroupService.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a content client for the CMS at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// GetNodeByID fetches a content node.
func (c *Client) GetNodeByID(ctx context.Context, id int) (*models.Node, error) {
	var node models.Node

	err := c.getJSON(ctx, "/nodes/"+strconv.Itoa(id), &node, ErrNodeNotFound)
	if err != nil {
		return nil, err
	}

	return &node, nil
}

// Publish asks the CMS to publish the node.
func (c *Client) Publish(ctx context.Context, nodeID int) error {
	return c.post(ctx, "/nodes/"+strconv.Itoa(nodeID)+"/publish", ErrNodeNotFound)
}

// Unpublish asks the CMS to unpublish the node.
func (c *Client) Unpublish(ctx context.Context, nodeID int) error {
	return c.post(ctx, "/nodes/"+strconv.Itoa(nodeID)+"/unpublish", ErrNodeNotFound)
}

// GroupByID fetches an approval group.
func (c *Client) GroupByID(ctx context.Context, id int) (*models.Group, error) {
	var group models.Group

	err := c.getJSON(ctx, "/groups/"+strconv.Itoa(id), &group, ErrGroupNotFound)
	if err != nil {
		return nil, err
	}

	return &group, nil
}

// IsMember checks whether the user belongs to the group.
func (c *Client) IsMember(ctx context.Context, groupID, userID int) (bool, error) {
	var result struct {
		Member bool `json:"member"`
	}

	path := "/groups/" + strconv.Itoa(groupID) + "/members/" + strconv.Itoa(userID)

	err := c.getJSON(ctx, path, &result, ErrGroupNotFound)
	if err != nil {
		return false, err
	}

	return result.Member, nil
}

// UserByID fetches a user record.
func (c *Client) UserByID(ctx context.Context, id int) (*models.User, error) {
	var user models.User

	err := c.getJSON(ctx, "/users/"+strconv.Itoa(id), &user, ErrUserNotFound)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("content system request failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("content system returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode content system response: %w", err)
	}

	return nil
}

func (c *Client) post(ctx context.Context, path string, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("content system request failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("content system returned status %d for %s", resp.StatusCode, path)
	}

	return nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
