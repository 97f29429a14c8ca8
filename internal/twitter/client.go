// Package twitter is a minimal X API v2 client covering exactly what
// the bot needs: resolve itself, read mentions and tweets with
// expansions, and post replies. Reads use app-only bearer auth, writes
// use OAuth 1.0a user context.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	tweetFields = "created_at,author_id,conversation_id,in_reply_to_user_id,referenced_tweets,attachments,entities"
	expansions  = "attachments.media_keys,author_id,referenced_tweets.id"
	mediaFields = "media_key,type,url,preview_image_url"
	userFields  = "username,name,protected"
)

// Client talks to the X API v2.
type Client struct {
	apiBase     string
	bearerToken string
	signer      *oauth1
	httpClient  *http.Client
}

// NewClient builds a client. apiBase is typically "https://api.twitter.com".
func NewClient(apiBase, bearerToken, consumerKey, consumerSecret, accessToken, accessSecret string) *Client {
	return &Client{
		apiBase:     strings.TrimSuffix(apiBase, "/"),
		bearerToken: bearerToken,
		signer:      newOAuth1(consumerKey, consumerSecret, accessToken, accessSecret),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// GetMe resolves the authenticated account via the user-context keys.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out struct {
		Data *User `json:"data"`
	}
	if err := c.get(ctx, "/2/users/me", nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, fmt.Errorf("users/me: empty response")
	}
	return out.Data, nil
}

// GetMentions fetches the mentions timeline for userID, newest first.
// maxResults is clamped to the API's 5..100 window. A zero since omits
// the start_time filter.
func (c *Client) GetMentions(ctx context.Context, userID string, maxResults int, since time.Time) (*MentionsPage, error) {
	if maxResults < 5 {
		maxResults = 5
	}
	if maxResults > 100 {
		maxResults = 100
	}
	q := url.Values{}
	q.Set("max_results", fmt.Sprint(maxResults))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", expansions)
	q.Set("media.fields", mediaFields)
	q.Set("user.fields", userFields)
	if !since.IsZero() {
		q.Set("start_time", since.UTC().Format(time.RFC3339))
	}

	var page MentionsPage
	if err := c.get(ctx, "/2/users/"+userID+"/mentions", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetTweet fetches one tweet with the same expansions as the mentions
// timeline so quoted tweets and media resolve identically.
func (c *Client) GetTweet(ctx context.Context, id string) (*TweetDetail, error) {
	q := url.Values{}
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", expansions)
	q.Set("media.fields", mediaFields)
	q.Set("user.fields", userFields)

	var detail TweetDetail
	if err := c.get(ctx, "/2/tweets/"+id, q, &detail); err != nil {
		return nil, err
	}
	if detail.Tweet == nil {
		return nil, fmt.Errorf("tweet %s: not found", id)
	}
	return &detail, nil
}

// CreateReply posts text as a reply to parentID.
func (c *Client) CreateReply(ctx context.Context, parentID, text string) (*PostedReply, error) {
	body := map[string]any{
		"text": text,
		"reply": map[string]string{
			"in_reply_to_tweet_id": parentID,
		},
	}
	var out struct {
		Data *PostedReply `json:"data"`
	}
	if err := c.post(ctx, "/2/tweets", body, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, fmt.Errorf("create reply: empty response")
	}
	return out.Data, nil
}

// CreateThread posts text as a reply, splitting it into a self-thread
// of word-boundary chunks when it exceeds limit. Returns the replies
// in posting order; on a mid-thread failure the already-posted chunks
// are returned along with the error.
func (c *Client) CreateThread(ctx context.Context, parentID, text string, limit int) ([]*PostedReply, error) {
	chunks := SplitChunks(text, limit)
	var posted []*PostedReply
	prev := parentID
	for i, chunk := range chunks {
		reply, err := c.CreateReply(ctx, prev, chunk)
		if err != nil {
			return posted, fmt.Errorf("thread chunk %d/%d: %w", i+1, len(chunks), err)
		}
		posted = append(posted, reply)
		prev = reply.ID
	}
	return posted, nil
}

// SplitChunks breaks text into pieces of at most limit runes, cutting
// on word boundaries. A single word longer than the limit is split
// mid-word rather than dropped.
func SplitChunks(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}
	var chunks []string
	var cur []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > limit {
			if len(cur) > 0 {
				chunks = append(chunks, string(cur))
				cur = nil
			}
			chunks = append(chunks, string(w[:limit]))
			w = w[limit:]
		}
		need := len(w)
		if len(cur) > 0 {
			need += len(cur) + 1
		}
		if need > limit {
			chunks = append(chunks, string(cur))
			cur = append([]rune{}, w...)
			continue
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
	}
	if len(cur) > 0 {
		chunks = append(chunks, string(cur))
	}
	return chunks
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.apiBase + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.signer.Sign(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twitter request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rle := newRateLimitError(resp.Header)
		slog.Warn("twitter rate limited",
			"path", req.URL.Path,
			"reset_at", rle.ResetAt,
			"remaining", rle.Remaining)
		return rle
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
