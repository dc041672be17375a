// Package storetest provides a conformance test suite for store.Store
// implementations. Every driver runs the same suite so behavioral
// differences between backends surface as test failures, not production
// surprises.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/nuln/urlfile/store"
)

// Option tunes the suite for backends that cannot support every
// assertion.
type Option func(*config)

type config struct {
	skipContentType bool
	skipMetadata    bool
}

// SkipContentType disables content-type round-trip assertions, for
// drivers whose backend cannot persist a content type.
func SkipContentType() Option {
	return func(c *config) { c.skipContentType = true }
}

// SkipMetadata disables metadata round-trip assertions, for drivers
// whose backend cannot persist object metadata.
func SkipMetadata() Option {
	return func(c *config) { c.skipMetadata = true }
}

// StoreTestSuite runs a comprehensive set of tests against a Store
// implementation. Call this in your driver tests to verify correctness:
//
//	func TestLocalStore(t *testing.T) {
//	    st := setupStore(t)
//	    storetest.StoreTestSuite(t, st)
//	}
func StoreTestSuite(t *testing.T, st store.Store, opts ...Option) { //nolint:gocyclo
	t.Helper()
	ctx := context.Background()

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	t.Run("Put_Get_Stat_Delete", func(t *testing.T) {
		key := "suite/hello.txt"
		content := "hello world"

		err := st.Put(ctx, key, strings.NewReader(content), store.PutOptions{
			ContentType: "text/plain",
		})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}

		info, err := st.Stat(ctx, key)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if info.Key != key {
			t.Errorf("Key = %q, want %q", info.Key, key)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Size = %d, want %d", info.Size, len(content))
		}
		if !cfg.skipContentType && info.ContentType != "text/plain" {
			t.Errorf("ContentType = %q, want %q", info.ContentType, "text/plain")
		}

		rc, getInfo, err := st.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		_ = rc.Close()
		if string(data) != content {
			t.Errorf("content = %q, want %q", string(data), content)
		}
		if getInfo == nil || getInfo.Key != key {
			t.Errorf("Get info = %+v, want key %q", getInfo, key)
		}

		if err := st.Delete(ctx, key); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := st.Stat(ctx, key); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Stat after Delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		key := "suite/overwrite.bin"

		for _, content := range []string{"first version", "second"} {
			if err := st.Put(ctx, key, strings.NewReader(content), store.PutOptions{}); err != nil {
				t.Fatalf("Put %q: %v", content, err)
			}
		}

		rc, _, err := st.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		data, _ := io.ReadAll(rc)
		_ = rc.Close()
		if string(data) != "second" {
			t.Errorf("content after overwrite = %q, want %q", string(data), "second")
		}

		info, err := st.Stat(ctx, key)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if info.Size != int64(len("second")) {
			t.Errorf("Size = %d, want %d (stale size from first version?)", info.Size, len("second"))
		}

		_ = st.Delete(ctx, key)
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := st.Stat(ctx, "suite/no/such/key"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Stat missing = %v, want ErrNotFound", err)
		}
		rc, _, err := st.Get(ctx, "suite/no/such/key")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get missing = %v, want ErrNotFound", err)
		}
		if rc != nil {
			_ = rc.Close()
		}
		// Deleting a missing key is not an error.
		if err := st.Delete(ctx, "suite/no/such/key"); err != nil {
			t.Errorf("Delete missing = %v, want nil", err)
		}
	})

	t.Run("BinaryContent", func(t *testing.T) {
		key := "suite/binary.bin"
		content := make([]byte, 512)
		for i := range content {
			content[i] = byte(i % 251)
		}

		if err := st.Put(ctx, key, bytes.NewReader(content), store.PutOptions{}); err != nil {
			t.Fatalf("Put: %v", err)
		}
		rc, _, err := st.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		data, _ := io.ReadAll(rc)
		_ = rc.Close()
		if !bytes.Equal(data, content) {
			t.Errorf("binary content corrupted: got %d bytes, want %d", len(data), len(content))
		}

		_ = st.Delete(ctx, key)
	})

	t.Run("Metadata", func(t *testing.T) {
		if cfg.skipMetadata {
			t.Skip("metadata not supported by this backend")
		}
		key := "suite/meta.txt"
		meta := map[string]string{"label": "foo", "owner": "suite"}

		err := st.Put(ctx, key, strings.NewReader("tagged"), store.PutOptions{Metadata: meta})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		info, err := st.Stat(ctx, key)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		for k, want := range meta {
			if got := info.Metadata[k]; got != want {
				t.Errorf("Metadata[%q] = %q, want %q", k, got, want)
			}
		}

		_ = st.Delete(ctx, key)
	})

	t.Run("List_ByPrefix", func(t *testing.T) {
		keys := []string{
			"suite/list/a.txt",
			"suite/list/b.txt",
			"suite/list/sub/c.txt",
			"suite/other/d.txt",
		}
		for _, key := range keys {
			if err := st.Put(ctx, key, strings.NewReader(key), store.PutOptions{}); err != nil {
				t.Fatalf("Put %s: %v", key, err)
			}
		}
		t.Cleanup(func() {
			for _, key := range keys {
				_ = st.Delete(ctx, key)
			}
		})

		var got []string
		for info, err := range st.List(ctx, "suite/list/") {
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			got = append(got, info.Key)
		}
		sort.Strings(got)

		want := []string{"suite/list/a.txt", "suite/list/b.txt", "suite/list/sub/c.txt"}
		if len(got) != len(want) {
			t.Fatalf("List found %d keys, want %d: %v", len(got), len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("List[%d] = %q, want %q", i, got[i], want[i])
			}
		}

		// A prefix matching nothing yields nothing.
		for info, err := range st.List(ctx, "suite/absent/") {
			if err != nil {
				t.Fatalf("List absent prefix: %v", err)
			}
			t.Errorf("List absent prefix yielded %q", info.Key)
		}
	})

	t.Run("List_StopsEarly", func(t *testing.T) {
		keys := []string{"suite/stop/1", "suite/stop/2", "suite/stop/3"}
		for _, key := range keys {
			if err := st.Put(ctx, key, strings.NewReader("x"), store.PutOptions{}); err != nil {
				t.Fatalf("Put %s: %v", key, err)
			}
		}
		t.Cleanup(func() {
			for _, key := range keys {
				_ = st.Delete(ctx, key)
			}
		})

		seen := 0
		for _, err := range st.List(ctx, "suite/stop/") {
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			seen++
			break
		}
		if seen != 1 {
			t.Errorf("saw %d objects after break, want 1", seen)
		}
	})

	t.Run("Walk", func(t *testing.T) {
		keys := []string{"suite/walk/f1", "suite/walk/f2", "suite/walk/f3"}
		for _, key := range keys {
			if err := st.Put(ctx, key, strings.NewReader("x"), store.PutOptions{}); err != nil {
				t.Fatalf("Put %s: %v", key, err)
			}
		}
		t.Cleanup(func() {
			for _, key := range keys {
				_ = st.Delete(ctx, key)
			}
		})

		var visited []string
		err := store.Walk(ctx, st, "suite/walk/", func(info store.ObjectInfo) error {
			visited = append(visited, info.Key)
			return nil
		})
		if err != nil {
			t.Fatalf("Walk: %v", err)
		}
		if len(visited) != len(keys) {
			t.Errorf("Walk visited %d objects, want %d: %v", len(visited), len(keys), visited)
		}

		// SkipRest stops the walk without error.
		visited = visited[:0]
		err = store.Walk(ctx, st, "suite/walk/", func(info store.ObjectInfo) error {
			visited = append(visited, info.Key)
			return store.SkipRest
		})
		if err != nil {
			t.Fatalf("Walk with SkipRest: %v", err)
		}
		if len(visited) != 1 {
			t.Errorf("Walk visited %d objects after SkipRest, want 1", len(visited))
		}
	})
}
