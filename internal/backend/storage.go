package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Upload stores data at bucket/objectPath and returns objectPath. Uploads
// overwrite, so retrying a partially acknowledged upload is safe.
func (c *Client) Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req := request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapeObjectPath(objectPath),
		body:        data,
		contentType: contentType,
		headers: map[string]string{
			"x-upsert":      "true",
			"cache-control": "3600",
		},
	}
	if _, err := c.do(ctx, req); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, objectPath, err)
	}
	return objectPath, nil
}

// PublicURL is the servable address of an object in a public bucket.
func (c *Client) PublicURL(bucket, objectPath string) string {
	return c.baseURL + "/storage/v1/object/public/" + url.PathEscape(bucket) + "/" + escapeObjectPath(objectPath)
}

func escapeObjectPath(p string) string {
	parts := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
