package kvstore

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestRoundTrip(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name string
		key  string
		doc  interface{}
		dest func() interface{}
	}{
		{
			name: "id list",
			key:  "allowlist",
			doc:  &[]int64{1, 2, 42},
			dest: func() interface{} { return &[]int64{} },
		},
		{
			name: "string map",
			key:  "usermap",
			doc:  &map[string]string{"100": "tg_100", "200": "legacy"},
			dest: func() interface{} { return &map[string]string{} },
		},
		{
			name: "bool map",
			key:  "trialused",
			doc:  &map[string]bool{"100": true},
			dest: func() interface{} { return &map[string]bool{} },
		},
		{
			name: "nested records",
			key:  "payments",
			doc: &map[string]map[string]interface{}{
				"pay-1": {"status": "pending", "amount": "199.00"},
			},
			dest: func() interface{} { return &map[string]map[string]interface{}{} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Save(tt.key, tt.doc); err != nil {
				t.Fatalf("save failed: %v", err)
			}

			got := tt.dest()
			store.Load(tt.key, got)

			if !reflect.DeepEqual(got, tt.doc) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tt.doc)
			}
		})
	}
}

func TestLoadMissingLeavesDefault(t *testing.T) {
	store := newTestStore(t)

	ids := []int64{7}
	store.Load("nonexistent", &ids)

	if len(ids) != 1 || ids[0] != 7 {
		t.Errorf("expected caller default to survive, got %v", ids)
	}
}

func TestLoadCorruptLeavesDefault(t *testing.T) {
	store := newTestStore(t)

	if err := os.WriteFile(store.path("broken"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to plant corrupt file: %v", err)
	}

	m := map[string]string{"k": "default"}
	store.Load("broken", &m)

	if m["k"] != "default" {
		t.Errorf("expected default to survive corrupt document, got %v", m)
	}
}

func TestCrashBeforeRenameKeepsOldDocument(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("doc", map[string]string{"v": "old"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Simulate a writer dying after the temp file is written but before the
	// rename: the visible document must stay intact.
	tmp := store.path("doc") + ".tmp"
	if err := os.WriteFile(tmp, []byte(`{"v": "half-writ`), 0o644); err != nil {
		t.Fatalf("failed to plant temp file: %v", err)
	}

	got := map[string]string{}
	store.Load("doc", &got)

	if got["v"] != "old" {
		t.Errorf("visible document damaged by abandoned temp file: %v", got)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save("doc", []int64{1}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(store.dir, "*.tmp"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}
