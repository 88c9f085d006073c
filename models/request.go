package models

// FetchRequest is the payload for POST /api/v1/fetch.
type FetchRequest struct {
	// URL is the target page. Required.
	URL string `json:"url" binding:"required,url"`

	// Hint picks the strategy: "auto" (default), "http-only" or "browser-only".
	Hint string `json:"hint,omitempty" binding:"omitempty,oneof=auto http http-only browser browser-only"`

	// Method defaults to GET.
	Method string `json:"method,omitempty" binding:"omitempty,oneof=GET HEAD POST PUT PATCH DELETE"`

	Headers map[string]string `json:"headers,omitempty"`

	// Format controls Content: "markdown" (default), "html", "text" or "raw".
	Format string `json:"format,omitempty" binding:"omitempty,oneof=raw html markdown text"`

	// Selector, when set, fills Items with the text of every match.
	Selector string `json:"selector,omitempty"`

	// MaxAgeMs allows a cached response up to this age. 0 bypasses the cache.
	MaxAgeMs int `json:"max_age_ms,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *FetchRequest) Defaults() {
	if r.Hint == "" {
		r.Hint = "auto"
	}
	if r.Format == "" {
		r.Format = "markdown"
	}
}

// BatchRequest is the payload for POST /api/v1/batch.
type BatchRequest struct {
	URLs    []string `json:"urls" binding:"required,min=1,max=100,dive,url"`
	Hint    string   `json:"hint,omitempty" binding:"omitempty,oneof=auto http http-only browser browser-only"`
	Workers int      `json:"workers,omitempty" binding:"omitempty,min=1,max=32"`
	Format  string   `json:"format,omitempty" binding:"omitempty,oneof=raw html markdown text"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *BatchRequest) Defaults() {
	if r.Hint == "" {
		r.Hint = "auto"
	}
	if r.Workers == 0 {
		r.Workers = 4
	}
	if r.Format == "" {
		r.Format = "markdown"
	}
}

// Pagination modes.
const (
	ModePattern = "pattern"
	ModeNext    = "next"
)

// PagesRequest is the payload for POST /api/v1/pages.
type PagesRequest struct {
	// Mode is "pattern" (URL holds a {} placeholder) or "next".
	Mode string `json:"mode" binding:"required,oneof=pattern next"`
	URL  string `json:"url" binding:"required"`

	// Pages is the page count for pattern mode.
	Pages int `json:"pages,omitempty" binding:"omitempty,min=1,max=500"`

	// MaxPages caps next mode. 0 uses the server default.
	MaxPages int    `json:"max_pages,omitempty" binding:"omitempty,min=1,max=500"`
	Selector string `json:"selector" binding:"required"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// TableRequest is the payload for POST /api/v1/table.
type TableRequest struct {
	URL string `json:"url" binding:"required,url"`
	// Selector defaults to "table.wikitable".
	Selector string `json:"selector,omitempty"`
	Hint     string `json:"hint,omitempty" binding:"omitempty,oneof=auto http http-only browser browser-only"`
}

// Field is one form field.
type Field struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value"`
}

// FormRequest is the payload for POST /api/v1/form.
type FormRequest struct {
	URL    string  `json:"url" binding:"required,url"`
	Fields []Field `json:"fields" binding:"required,min=1,dive"`
	Format string  `json:"format,omitempty" binding:"omitempty,oneof=raw html markdown text"`
}
