package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Filter is one PostgREST horizontal filter.
type Filter struct {
	Column string
	Op     string
	Value  string
}

// Eq matches rows where column equals value.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: "eq", Value: value}
}

// In matches rows where column is one of values.
func In(column string, values ...string) Filter {
	quoted := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `"`, `\"`)
		quoted[i] = `"` + v + `"`
	}
	return Filter{Column: column, Op: "in", Value: "(" + strings.Join(quoted, ",") + ")"}
}

func filterQuery(filters []Filter) url.Values {
	q := url.Values{}
	for _, f := range filters {
		q.Add(f.Column, f.Op+"."+f.Value)
	}
	return q
}

func tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

// Insert adds row to table. When out is non-nil the created row, as
// returned by the server, is decoded into it.
func (c *Client) Insert(ctx context.Context, table string, row any, out any) error {
	req, err := jsonRequest(http.MethodPost, tablePath(table), nil, row)
	if err != nil {
		return err
	}
	if out != nil {
		req.headers["Prefer"] = "return=representation"
	} else {
		req.headers["Prefer"] = "return=minimal"
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	if out == nil {
		return nil
	}
	return decodeFirst(resp.body, out)
}

// Upsert inserts row or merges it into the row that conflicts on the
// comma-separated onConflict columns.
func (c *Client) Upsert(ctx context.Context, table string, row any, onConflict string) error {
	q := url.Values{}
	if onConflict != "" {
		q.Set("on_conflict", onConflict)
	}
	req, err := jsonRequest(http.MethodPost, tablePath(table), q, row)
	if err != nil {
		return err
	}
	req.headers["Prefer"] = "resolution=merge-duplicates,return=minimal"

	if _, err := c.do(ctx, req); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// Update applies values to every row matching filters.
func (c *Client) Update(ctx context.Context, table string, values any, filters ...Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("update %s: refusing unfiltered update", table)
	}
	req, err := jsonRequest(http.MethodPatch, tablePath(table), filterQuery(filters), values)
	if err != nil {
		return err
	}
	req.headers["Prefer"] = "return=minimal"

	if _, err := c.do(ctx, req); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Delete removes every row matching filters. Deleting rows that do not
// exist succeeds.
func (c *Client) Delete(ctx context.Context, table string, filters ...Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("delete %s: refusing unfiltered delete", table)
	}
	req, err := jsonRequest(http.MethodDelete, tablePath(table), filterQuery(filters), nil)
	if err != nil {
		return err
	}
	req.headers["Prefer"] = "return=minimal"

	if _, err := c.do(ctx, req); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// Count returns the exact number of rows matching filters.
func (c *Client) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	q := filterQuery(filters)
	q.Set("select", "*")
	req, err := jsonRequest(http.MethodHead, tablePath(table), q, nil)
	if err != nil {
		return 0, err
	}
	req.headers["Prefer"] = "count=exact"

	resp, err := c.do(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	n, err := parseContentRange(resp.header.Get("Content-Range"))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// RPC calls a database function. out may be nil.
func (c *Client) RPC(ctx context.Context, fn string, args any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	req, err := jsonRequest(http.MethodPost, "/rest/v1/rpc/"+url.PathEscape(fn), nil, args)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", fn, err)
	}
	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("rpc %s: decode: %w", fn, err)
	}
	return nil
}

// parseContentRange reads the total from "0-9/42" or "*/42".
func parseContentRange(v string) (int, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("missing count in Content-Range %q", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("server did not report an exact count")
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("bad Content-Range %q: %w", v, err)
	}
	return n, nil
}

// decodeFirst decodes a single object or the first element of an array.
func decodeFirst(body []byte, out any) error {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var rows []json.RawMessage
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode rows: %w", err)
		}
		if len(rows) == 0 {
			return ErrNotFound
		}
		body = rows[0]
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}
