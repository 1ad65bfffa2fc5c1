package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"go-ingest-scheduler/internal/models"
)

// Client talks to a running ingestion server over HTTP.
type Client struct {
	rest *resty.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		rest: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

type apiError struct {
	Error string `json:"error"`
}

type submitRequest struct {
	IDs      []int64 `json:"ids"`
	Priority string  `json:"priority"`
}

type submitResponse struct {
	IngestionID string `json:"ingestion_id"`
}

func (c *Client) Submit(ctx context.Context, ids []int64, priority string) (string, error) {
	var result submitResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(submitRequest{IDs: ids, Priority: priority}).
		SetResult(&result).
		SetError(&apiError{}).
		Post("/ingest")
	if err := check(resp, err, http.StatusAccepted); err != nil {
		return "", err
	}
	return result.IngestionID, nil
}

func (c *Client) Status(ctx context.Context, id string) (models.StatusView, error) {
	var view models.StatusView
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&view).
		SetError(&apiError{}).
		Get("/status/{id}")
	return view, check(resp, err, http.StatusOK)
}

// WaitForCompletion polls Status every interval until the request completes.
// onPoll, when set, sees every intermediate view.
func (c *Client) WaitForCompletion(ctx context.Context, id string, interval time.Duration, onPoll func(models.StatusView)) (models.StatusView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		view, err := c.Status(ctx, id)
		if err != nil {
			return view, err
		}
		if onPoll != nil {
			onPoll(view)
		}
		if view.Status == models.StatusDone {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}
}

func check(resp *resty.Response, err error, expected int) error {
	if err != nil {
		return errors.Wrap(err, "calling ingestion server")
	}
	if resp.StatusCode() == expected {
		return nil
	}
	msg := http.StatusText(resp.StatusCode())
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Error != "" {
		msg = apiErr.Error
	}
	return errors.Errorf("API error: %d - %s", resp.StatusCode(), msg)
}

// ParseIDList turns "1,2, 3" into ids.
func ParseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.Errorf("%q is not an integer", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
