package twitter

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// oauth1 signs requests with OAuth 1.0a HMAC-SHA1 user context.
// Posting tweets requires user context; app-only bearer auth is not
// accepted on POST /2/tweets.
type oauth1 struct {
	consumerKey    string
	consumerSecret string
	token          string
	tokenSecret    string

	// overridable in tests for deterministic signatures
	nonce func() string
	now   func() time.Time
}

func newOAuth1(consumerKey, consumerSecret, token, tokenSecret string) *oauth1 {
	return &oauth1{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		token:          token,
		tokenSecret:    tokenSecret,
		nonce:          randomNonce,
		now:            time.Now,
	}
}

func randomNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the platform is broken anyway
		panic(err)
	}
	return hex.EncodeToString(b)
}

// Sign sets the Authorization header on req. For JSON-body requests
// only the oauth_* parameters and query parameters enter the signature
// base string, per RFC 5849 §3.4.1.3.1.
func (o *oauth1) Sign(req *http.Request) {
	params := map[string]string{
		"oauth_consumer_key":     o.consumerKey,
		"oauth_nonce":            o.nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(o.now().Unix(), 10),
		"oauth_token":            o.token,
		"oauth_version":          "1.0",
	}

	sig := o.signature(req.Method, req.URL, params)
	params["oauth_signature"] = sig

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("OAuth ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `%s="%s"`, percentEncode(k), percentEncode(params[k]))
	}
	req.Header.Set("Authorization", b.String())
}

func (o *oauth1) signature(method string, u *url.URL, oauthParams map[string]string) string {
	// collect oauth params plus query params
	all := make(map[string][]string)
	for k, v := range oauthParams {
		all[k] = append(all[k], v)
	}
	for k, vs := range u.Query() {
		all[k] = append(all[k], vs...)
	}

	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range all {
		ek := percentEncode(k)
		for _, v := range vs {
			pairs = append(pairs, pair{ek, percentEncode(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	var ps strings.Builder
	for i, p := range pairs {
		if i > 0 {
			ps.WriteByte('&')
		}
		ps.WriteString(p.k)
		ps.WriteByte('=')
		ps.WriteString(p.v)
	}

	baseURL := u.Scheme + "://" + u.Host + u.EscapedPath()
	base := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(ps.String())

	key := percentEncode(o.consumerSecret) + "&" + percentEncode(o.tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode implements RFC 3986 encoding as OAuth requires it;
// url.QueryEscape differs on space and tilde so it cannot be used here.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
