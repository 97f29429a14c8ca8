package venice

// Request is one completion call. Exactly one of ImageData/ImageURL
// may be set; when either is present the caller should route to a
// vision-capable model.
type Request struct {
	Model  string
	System string
	Prompt string

	// inline image, sent as a base64 data URL
	ImageData []byte
	ImageMime string
	// remote image, sent by reference
	ImageURL string

	Params *Parameters
}

// HasImage reports whether the request carries visual content.
func (r *Request) HasImage() bool {
	return len(r.ImageData) > 0 || r.ImageURL != ""
}

// Parameters is the venice_parameters extension block on the
// OpenAI-compatible completions endpoint.
type Parameters struct {
	EnableWebSearch           string `json:"enable_web_search,omitempty"` // "auto", "on", "off"
	EnableWebCitations        bool   `json:"enable_web_citations,omitempty"`
	IncludeVeniceSystemPrompt *bool  `json:"include_venice_system_prompt,omitempty"`
}

// WebSearchParams returns the parameter block used for the analysis
// stage: web search on auto with citations, provider system prompt
// suppressed so the persona prompt is the only system voice.
func WebSearchParams() *Parameters {
	off := false
	return &Parameters{
		EnableWebSearch:           "auto",
		EnableWebCitations:        true,
		IncludeVeniceSystemPrompt: &off,
	}
}

// PlainParams returns the parameter block for stages that must not
// reach out to the web.
func PlainParams() *Parameters {
	off := false
	return &Parameters{IncludeVeniceSystemPrompt: &off}
}

// wire types

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	VeniceParameters *Parameters   `json:"venice_parameters,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
