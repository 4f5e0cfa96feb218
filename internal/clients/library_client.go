package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"librarian/internal/catalog"
	"librarian/internal/notify"
	"librarian/internal/tasks"
)

// Overdue is the overdue listing response.
type Overdue struct {
	AsOf  string         `json:"as_of"`
	Count int            `json:"count"`
	Books []catalog.Book `json:"books"`
}

func (c *Client) Overdue(ctx context.Context, asOf string) (*Overdue, error) {
	path := "/api/circulation/overdue-books"
	if asOf != "" {
		path += "?as_of=" + url.QueryEscape(asOf)
	}
	var out Overdue
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EmailLogs(ctx context.Context, emailType string, skip, limit int) ([]notify.EmailLog, error) {
	q := url.Values{}
	if emailType != "" {
		q.Set("type", emailType)
	}
	if skip > 0 {
		q.Set("skip", fmt.Sprint(skip))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/api/email-logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []notify.EmailLog
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendReminders(ctx context.Context) (*tasks.Task, error) {
	return c.enqueue(ctx, "/api/tasks/send-reminders")
}

func (c *Client) SendTestEmail(ctx context.Context) (*tasks.Task, error) {
	return c.enqueue(ctx, "/api/tasks/test-email")
}

func (c *Client) enqueue(ctx context.Context, path string) (*tasks.Task, error) {
	var t tasks.Task
	if _, err := c.do(ctx, http.MethodPost, path, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// WeeklyReport triggers the report and waits up to wait for it. A task that
// is still running is returned with pending=true.
func (c *Client) WeeklyReport(ctx context.Context, wait time.Duration) (t *tasks.Task, pending bool, err error) {
	path := "/api/tasks/weekly-report"
	if wait > 0 {
		path += "?wait=" + url.QueryEscape(wait.String())
	}

	var out tasks.Task
	status, err := c.do(ctx, http.MethodPost, path, nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusInternalServerError {
		if jerr := json.Unmarshal(apiErr.Body, &out); jerr == nil && out.ID != "" {
			return &out, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return &out, status == http.StatusAccepted, nil
}

func (c *Client) Task(ctx context.Context, id string) (*tasks.Task, error) {
	var t tasks.Task
	if _, err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
