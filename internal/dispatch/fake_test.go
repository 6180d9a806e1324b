package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/clawinfra/confessly/internal/backend"
)

type row = map[string]any

// fakeBackend is an in-memory table store with PostgREST-like semantics.
type fakeBackend struct {
	mu      sync.Mutex
	user    backend.User
	authErr error
	err     error
	tables  map[string][]row
	uploads map[string][]byte
	calls   []string
	nextID  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		user:    backend.User{ID: "user-1"},
		tables:  make(map[string][]row),
		uploads: make(map[string][]byte),
	}
}

func toRow(v any) row {
	data, _ := json.Marshal(v)
	var r row
	json.Unmarshal(data, &r)
	return r
}

func matches(r row, filters []backend.Filter) bool {
	for _, f := range filters {
		got := fmt.Sprint(r[f.Column])
		switch f.Op {
		case "eq":
			if got != f.Value {
				return false
			}
		case "in":
			found := false
			for _, v := range strings.Split(strings.Trim(f.Value, "()"), ",") {
				if strings.Trim(v, `"`) == got {
					found = true
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (f *fakeBackend) rows(table string) []row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]row(nil), f.tables[table]...)
}

func (f *fakeBackend) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeBackend) CurrentUser(context.Context) (backend.User, error) {
	if f.authErr != nil {
		return backend.User{}, f.authErr
	}
	return f.user, nil
}

func (f *fakeBackend) Insert(_ context.Context, table string, v any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("insert " + table); err != nil {
		return err
	}
	r := toRow(v)
	if _, ok := r["id"]; !ok {
		f.nextID++
		r["id"] = fmt.Sprintf("srv-%d", f.nextID)
	}
	r["created_at"] = "2026-03-01T12:00:00Z"
	f.tables[table] = append(f.tables[table], r)
	if out != nil {
		data, _ := json.Marshal(r)
		return json.Unmarshal(data, out)
	}
	return nil
}

func (f *fakeBackend) Upsert(_ context.Context, table string, v any, onConflict string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("upsert " + table); err != nil {
		return err
	}
	r := toRow(v)
	var keys []backend.Filter
	for _, col := range strings.Split(onConflict, ",") {
		keys = append(keys, backend.Eq(col, fmt.Sprint(r[col])))
	}
	for _, existing := range f.tables[table] {
		if matches(existing, keys) {
			for k, val := range r {
				existing[k] = val
			}
			return nil
		}
	}
	f.tables[table] = append(f.tables[table], r)
	return nil
}

func (f *fakeBackend) Update(_ context.Context, table string, v any, filters ...backend.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update " + table); err != nil {
		return err
	}
	vals := toRow(v)
	for _, existing := range f.tables[table] {
		if matches(existing, filters) {
			for k, val := range vals {
				existing[k] = val
			}
		}
	}
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, table string, filters ...backend.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete " + table); err != nil {
		return err
	}
	kept := f.tables[table][:0]
	for _, existing := range f.tables[table] {
		if !matches(existing, filters) {
			kept = append(kept, existing)
		}
	}
	f.tables[table] = kept
	return nil
}

func (f *fakeBackend) Count(_ context.Context, table string, filters ...backend.Filter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("count " + table); err != nil {
		return 0, err
	}
	n := 0
	for _, existing := range f.tables[table] {
		if matches(existing, filters) {
			n++
		}
	}
	return n, nil
}

// RPC implements set_confession_like over a confession_likes table.
func (f *fakeBackend) RPC(_ context.Context, fn string, args any, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("rpc " + fn); err != nil {
		return err
	}
	if fn != "set_confession_like" {
		return fmt.Errorf("unknown rpc %s", fn)
	}
	a := toRow(args)
	key := []backend.Filter{
		backend.Eq("confession_id", fmt.Sprint(a["p_confession_id"])),
		backend.Eq("user_id", f.user.ID),
	}
	kept := f.tables["confession_likes"][:0]
	for _, existing := range f.tables["confession_likes"] {
		if !matches(existing, key) {
			kept = append(kept, existing)
		}
	}
	if a["p_liked"] == true {
		kept = append(kept, row{"confession_id": a["p_confession_id"], "user_id": f.user.ID})
	}
	f.tables["confession_likes"] = kept
	return nil
}

func (f *fakeBackend) Upload(_ context.Context, bucket, objectPath string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("upload " + bucket); err != nil {
		return "", err
	}
	f.uploads[objectPath] = data
	return objectPath, nil
}

func (f *fakeBackend) PublicURL(bucket, objectPath string) string {
	return "https://cdn.example.com/" + bucket + "/" + objectPath
}
