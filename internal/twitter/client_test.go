package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(srvURL string) *Client {
	c := NewClient(srvURL, "bearer", "ck", "cs", "at", "as")
	return c
}

func TestGetMentions(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(MentionsPage{
			Tweets: []Tweet{{ID: "100", Text: "@bot hello", AuthorID: "7"}},
			Includes: &Includes{
				Users: []User{{ID: "7", Username: "alice"}},
			},
		})
	}))
	defer srv.Close()

	page, err := testClient(srv.URL).GetMentions(context.Background(), "42", 5, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetMentions: %v", err)
	}
	if gotPath != "/2/users/42/mentions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer bearer" {
		t.Errorf("auth = %q, want bearer", gotAuth)
	}
	if got := gotQuery["start_time"]; len(got) != 1 || got[0] != "2026-01-02T03:04:05Z" {
		t.Errorf("start_time = %v", got)
	}
	if got := gotQuery["expansions"]; len(got) != 1 || !strings.Contains(got[0], "attachments.media_keys") {
		t.Errorf("expansions = %v", got)
	}
	if len(page.Tweets) != 1 || page.Tweets[0].ID != "100" {
		t.Fatalf("tweets = %+v", page.Tweets)
	}
	if u, ok := page.Includes.UserByID()["7"]; !ok || u.Username != "alice" {
		t.Errorf("user lookup = %+v", page.Includes.UserByID())
	}
}

func TestGetMentionsClampsMaxResults(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("max_results")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if _, err := c.GetMentions(context.Background(), "42", 3, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if got != "5" {
		t.Errorf("max_results = %q, want clamped to 5", got)
	}
}

func TestRateLimitResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", "1756600000")
		w.Header().Set("x-rate-limit-remaining", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetMentions(context.Background(), "42", 5, time.Time{})
	rle, ok := AsRateLimit(err)
	if !ok {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rle.ResetAt.Unix() != 1756600000 {
		t.Errorf("ResetAt = %v", rle.ResetAt)
	}
	if rle.Remaining != 0 {
		t.Errorf("Remaining = %d", rle.Remaining)
	}
}

func TestRateLimitWait(t *testing.T) {
	now := time.Unix(1000, 0)
	tests := []struct {
		name string
		err  RateLimitError
		want time.Duration
	}{
		{"future reset", RateLimitError{ResetAt: time.Unix(1060, 0)}, 65 * time.Second},
		{"past reset", RateLimitError{ResetAt: time.Unix(900, 0)}, 0},
		{"no header", RateLimitError{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Wait(now); got != tt.want {
				t.Errorf("Wait = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"title":"Forbidden"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetTweet(context.Background(), "1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("status = %d", apiErr.Status)
	}
}

func TestCreateReplySignsWithOAuth(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"900","text":"hi"}}`))
	}))
	defer srv.Close()

	reply, err := testClient(srv.URL).CreateReply(context.Background(), "100", "hi")
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	if reply.ID != "900" {
		t.Errorf("reply id = %q", reply.ID)
	}
	if !strings.HasPrefix(gotAuth, "OAuth ") {
		t.Errorf("auth = %q, want OAuth signature", gotAuth)
	}
	for _, part := range []string{"oauth_consumer_key", "oauth_signature", "oauth_nonce", "oauth_timestamp"} {
		if !strings.Contains(gotAuth, part) {
			t.Errorf("auth header missing %s", part)
		}
	}
	if gotBody["text"] != "hi" {
		t.Errorf("body text = %v", gotBody["text"])
	}
	rep, _ := gotBody["reply"].(map[string]any)
	if rep["in_reply_to_tweet_id"] != "100" {
		t.Errorf("reply block = %v", gotBody["reply"])
	}
}

func TestCreateThread(t *testing.T) {
	var parents []string
	var texts []string
	n := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text  string `json:"text"`
			Reply struct {
				InReplyTo string `json:"in_reply_to_tweet_id"`
			} `json:"reply"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		parents = append(parents, body.Reply.InReplyTo)
		texts = append(texts, body.Text)
		n++
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "90" + string(rune('0'+n))}})
	}))
	defer srv.Close()

	posted, err := testClient(srv.URL).CreateThread(context.Background(), "100", "one two three four", 9)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if len(posted) != 3 {
		t.Fatalf("posted %d chunks, want 3: %v", len(posted), texts)
	}
	// each chunk replies to the previous one
	if parents[0] != "100" {
		t.Errorf("first parent = %q", parents[0])
	}
	if parents[1] != posted[0].ID || parents[2] != posted[1].ID {
		t.Errorf("thread chain broken: parents=%v posted=%v", parents, posted)
	}
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"fits", "short text", 280, []string{"short text"}},
		{"word boundary", "one two three four", 9, []string{"one two", "three", "four"}},
		{"exact fit", "abcd efgh", 4, []string{"abcd", "efgh"}},
		{"oversize word", "abcdefghij end", 4, []string{"abcd", "efgh", "ij", "end"}},
		{"zero limit", "anything", 0, []string{"anything"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitChunks(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("chunks = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
			for i, c := range got {
				if tt.limit > 0 && len([]rune(c)) > tt.limit {
					t.Errorf("chunk %d exceeds limit: %q", i, c)
				}
			}
		})
	}
}
