// Package state persists what the bot must remember between polls:
// which tweets it already answered and which author owns each
// conversation it participates in. The format is a small JSON file so
// operators can inspect and edit it by hand.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Store is the durable bot state. It is not safe for concurrent use;
// the bot runs a single processing goroutine by design.
type Store struct {
	path      string
	processed map[string]struct{}
	// conversation_id -> author_id of the first mention seen in it
	allowedAuthors map[string]string
	dirty          bool
}

// fileShape is the on-disk format.
type fileShape struct {
	ProcessedTweets []string          `json:"processed_tweets"`
	AllowedAuthors  map[string]string `json:"allowed_authors"`
}

// Open loads the state file at path. A missing file yields empty
// state. A corrupt file also yields empty state with a warning:
// losing the gate map risks a duplicate reply at worst, while
// refusing to start helps nobody.
func Open(path string) *Store {
	s := &Store{
		path:           path,
		processed:      make(map[string]struct{}),
		allowedAuthors: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state file unreadable, starting empty", "path", path, "error", err)
		}
		return s
	}

	// legacy shape: a bare array of processed IDs
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var legacy []string
		if err := json.Unmarshal(data, &legacy); err != nil {
			slog.Warn("state file corrupt, starting empty", "path", path)
			return s
		}
		for _, id := range legacy {
			s.processed[id] = struct{}{}
		}
		s.dirty = true // rewrite in the current shape on next save
		slog.Info("migrated legacy state file", "path", path, "processed", len(legacy))
		return s
	}

	var shape fileShape
	if err := json.Unmarshal(data, &shape); err != nil {
		slog.Warn("state file corrupt, starting empty", "path", path)
		return s
	}
	for _, id := range shape.ProcessedTweets {
		s.processed[id] = struct{}{}
	}
	for conv, author := range shape.AllowedAuthors {
		s.allowedAuthors[conv] = author
	}
	return s
}

// IsProcessed reports whether the tweet was already handled.
func (s *Store) IsProcessed(tweetID string) bool {
	_, ok := s.processed[tweetID]
	return ok
}

// MarkProcessed records the tweet as handled. Marking happens for
// replied, skipped, and permanently-failed mentions alike; only
// transient failures leave a mention unmarked for the next poll.
func (s *Store) MarkProcessed(tweetID string) {
	if _, ok := s.processed[tweetID]; ok {
		return
	}
	s.processed[tweetID] = struct{}{}
	s.dirty = true
}

// AllowedAuthor returns the author bound to the conversation, if any.
func (s *Store) AllowedAuthor(conversationID string) (string, bool) {
	a, ok := s.allowedAuthors[conversationID]
	return a, ok
}

// BindAuthor binds the conversation to its first responder. The first
// writer wins; later calls for the same conversation are ignored.
func (s *Store) BindAuthor(conversationID, authorID string) {
	if conversationID == "" || authorID == "" {
		return
	}
	if _, ok := s.allowedAuthors[conversationID]; ok {
		return
	}
	s.allowedAuthors[conversationID] = authorID
	s.dirty = true
}

// ProcessedCount returns how many tweets are recorded as handled.
func (s *Store) ProcessedCount() int { return len(s.processed) }

// ConversationCount returns how many conversations are gated.
func (s *Store) ConversationCount() int { return len(s.allowedAuthors) }

// Save writes the state atomically (temp file then rename). A no-op
// when nothing changed since the last save.
func (s *Store) Save() error {
	if !s.dirty {
		return nil
	}

	shape := fileShape{
		ProcessedTweets: make([]string, 0, len(s.processed)),
		AllowedAuthors:  s.allowedAuthors,
	}
	for id := range s.processed {
		shape.ProcessedTweets = append(shape.ProcessedTweets, id)
	}
	sort.Strings(shape.ProcessedTweets) // stable files diff cleanly

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(shape); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state: %w", err)
	}
	s.dirty = false
	return nil
}
