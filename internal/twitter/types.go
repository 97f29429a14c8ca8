package twitter

import (
	"context"
	"time"
)

// Tweet is an X API v2 tweet object with the fields the bot requests.
// Mentions are tweets; there is no separate mention type on the wire.
type Tweet struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	AuthorID         string            `json:"author_id,omitempty"`
	ConversationID   string            `json:"conversation_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at,omitempty"`
	InReplyToUserID  string            `json:"in_reply_to_user_id,omitempty"`
	ReferencedTweets []ReferencedTweet `json:"referenced_tweets,omitempty"`
	Attachments      *Attachments      `json:"attachments,omitempty"`
	Entities         *Entities         `json:"entities,omitempty"`
}

// IsConversationRoot reports whether the tweet opened its own thread.
func (t *Tweet) IsConversationRoot() bool {
	return t.ConversationID == "" || t.ConversationID == t.ID
}

// QuotedID returns the ID of the tweet this one quotes, or "".
func (t *Tweet) QuotedID() string {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == "quoted" {
			return ref.ID
		}
	}
	return ""
}

// MediaKeys returns the tweet's attachment media keys, if any.
func (t *Tweet) MediaKeys() []string {
	if t.Attachments == nil {
		return nil
	}
	return t.Attachments.MediaKeys
}

// ReferencedTweet links a tweet to one it quotes or replies to.
type ReferencedTweet struct {
	Type string `json:"type"` // "quoted", "replied_to", "retweeted"
	ID   string `json:"id"`
}

// Attachments carries media keys resolved through the includes block.
type Attachments struct {
	MediaKeys []string `json:"media_keys,omitempty"`
}

// Entities carries the parsed entity annotations the bot cares about.
type Entities struct {
	URLs []URLEntity `json:"urls,omitempty"`
}

// URLEntity is a t.co link with its expansions.
type URLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url,omitempty"`
	UnwoundURL  string `json:"unwound_url,omitempty"`
}

// Best returns the most expanded form of the URL.
func (u URLEntity) Best() string {
	if u.UnwoundURL != "" {
		return u.UnwoundURL
	}
	if u.ExpandedURL != "" {
		return u.ExpandedURL
	}
	return u.URL
}

// User is an X API v2 user object.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	Protected bool   `json:"protected,omitempty"`
}

// Media is an X API v2 media object from the includes block.
type Media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"` // "photo", "video", "animated_gif"
	URL             string `json:"url,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
}

// Includes is the expansion payload attached to tweet responses.
type Includes struct {
	Media  []Media `json:"media,omitempty"`
	Users  []User  `json:"users,omitempty"`
	Tweets []Tweet `json:"tweets,omitempty"`
}

// MediaByKey builds a media_key lookup over the includes.
func (i *Includes) MediaByKey() map[string]Media {
	if i == nil {
		return nil
	}
	m := make(map[string]Media, len(i.Media))
	for _, md := range i.Media {
		m[md.MediaKey] = md
	}
	return m
}

// UserByID builds a user-ID lookup over the includes.
func (i *Includes) UserByID() map[string]User {
	if i == nil {
		return nil
	}
	m := make(map[string]User, len(i.Users))
	for _, u := range i.Users {
		m[u.ID] = u
	}
	return m
}

// MentionsPage is one page of the mentions timeline with expansions.
type MentionsPage struct {
	Tweets   []Tweet   `json:"data,omitempty"`
	Includes *Includes `json:"includes,omitempty"`
}

// TweetDetail is a single tweet lookup with expansions.
type TweetDetail struct {
	Tweet    *Tweet    `json:"data,omitempty"`
	Includes *Includes `json:"includes,omitempty"`
}

// PostedReply is the confirmation returned after posting a reply.
type PostedReply struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

// API is the platform surface the bot consumes. *Client implements it;
// tests substitute fakes.
type API interface {
	// GetMe resolves the authenticated bot account.
	GetMe(ctx context.Context) (*User, error)
	// GetMentions fetches recent mentions of userID, newest first.
	// A zero since means no start_time filter.
	GetMentions(ctx context.Context, userID string, maxResults int, since time.Time) (*MentionsPage, error)
	// GetTweet fetches a single tweet with media/user/quote expansions.
	GetTweet(ctx context.Context, id string) (*TweetDetail, error)
	// CreateReply posts text as a reply to parentID.
	CreateReply(ctx context.Context, parentID, text string) (*PostedReply, error)
	// CreateThread posts text as a reply, splitting it into a
	// self-thread when it exceeds limit runes.
	CreateThread(ctx context.Context, parentID, text string, limit int) ([]*PostedReply, error)
}
