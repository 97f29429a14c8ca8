package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := Open(path)
	s.MarkProcessed("100")
	s.MarkProcessed("200")
	s.BindAuthor("conv1", "author7")
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2 := Open(path)
	if !s2.IsProcessed("100") || !s2.IsProcessed("200") {
		t.Error("processed IDs lost on reload")
	}
	if s2.IsProcessed("300") {
		t.Error("phantom processed ID")
	}
	if a, ok := s2.AllowedAuthor("conv1"); !ok || a != "author7" {
		t.Errorf("allowed author = %q, %v", a, ok)
	}
}

func TestStoreLegacyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`["11", "22"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Open(path)
	if !s.IsProcessed("11") || !s.IsProcessed("22") {
		t.Error("legacy IDs not loaded")
	}
	if s.ConversationCount() != 0 {
		t.Error("legacy shape has no author map")
	}

	// the migrated store saves in the current shape
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var shape struct {
		ProcessedTweets []string          `json:"processed_tweets"`
		AllowedAuthors  map[string]string `json:"allowed_authors"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		t.Fatalf("saved file not in current shape: %v\n%s", err, data)
	}
	if len(shape.ProcessedTweets) != 2 {
		t.Errorf("processed_tweets = %v", shape.ProcessedTweets)
	}
}

func TestStoreCorruptFile(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"truncated json", `{"processed_tweets": ["1"`},
		{"wrong type", `"just a string"`},
		{"broken array", `["1", 2edg]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}
			s := Open(path)
			if s.ProcessedCount() != 0 {
				t.Error("corrupt file should yield empty state")
			}
		})
	}
}

func TestStoreMissingFile(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "nope.json"))
	if s.ProcessedCount() != 0 || s.ConversationCount() != 0 {
		t.Error("missing file should yield empty state")
	}
	// saving empty unchanged state is a no-op, not an error
	if err := s.Save(); err != nil {
		t.Errorf("Save: %v", err)
	}
}

func TestBindAuthorFirstWriterWins(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "state.json"))
	s.BindAuthor("conv1", "alice")
	s.BindAuthor("conv1", "mallory")
	if a, _ := s.AllowedAuthor("conv1"); a != "alice" {
		t.Errorf("author = %q, want first writer kept", a)
	}

	s.BindAuthor("", "x")
	s.BindAuthor("conv2", "")
	if s.ConversationCount() != 1 {
		t.Errorf("empty keys should not bind, count = %d", s.ConversationCount())
	}
}

func TestMarkProcessedIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := Open(path)
	s.MarkProcessed("1")
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	before, _ := os.Stat(path)

	// marking the same ID again leaves the store clean
	s.MarkProcessed("1")
	time.Sleep(10 * time.Millisecond)
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("re-marking an existing ID should not rewrite the file")
	}
}

func TestReplyLog(t *testing.T) {
	log, err := OpenReplyLog(filepath.Join(t.TempDir(), "replies.db"))
	if err != nil {
		t.Fatalf("OpenReplyLog: %v", err)
	}
	defer log.Close()

	ctx := context.Background()
	now := time.Now()
	if err := log.Record(ctx, "900", "100", "conv1", "hello", now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := log.Record(ctx, "901", "101", "conv1", "again", now); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// duplicate reply IDs are ignored, not errors
	if err := log.Record(ctx, "901", "101", "conv1", "again", now); err != nil {
		t.Fatalf("Record duplicate: %v", err)
	}

	if n, _ := log.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
	if n, _ := log.CountSince(ctx, now.Add(-time.Hour)); n != 1 {
		t.Errorf("CountSince = %d, want 1", n)
	}
}
