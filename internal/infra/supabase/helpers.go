package supabase

import (
	"context"
	"fmt"
	"net/http"
)

// ============================================================
// PostgREST helpers for GET, POST, PATCH, DELETE
// ============================================================

func (c *Client) restURL(path string) string {
	return fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, request{method: http.MethodGet, url: c.restURL(path), path: path})
}

func (c *Client) doPost(ctx context.Context, table string, data any) ([]byte, error) {
	return c.do(ctx, request{
		method: http.MethodPost,
		url:    c.restURL(table),
		path:   table,
		body:   data,
		prefer: "return=representation",
	})
}

func (c *Client) doPatch(ctx context.Context, path string, data any) error {
	_, err := c.do(ctx, request{
		method: http.MethodPatch,
		url:    c.restURL(path),
		path:   path,
		body:   data,
		prefer: "return=minimal",
	})
	return err
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, url: c.restURL(path), path: path})
	return err
}
