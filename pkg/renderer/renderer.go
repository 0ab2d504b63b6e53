package renderer

import (
	"fmt"
	"time"

	"github.com/osteele/liquid"
)

// reservedPrefixes are the system-supplied context roots a template
// author can always reference, regardless of what custom variables a
// given send populates.
var reservedPrefixes = []string{
	"contact", "organization", "broadcast", "list",
	"unsubscribe_link", "view_in_browser_link", "current_date", "current_year",
}

// ReservedPrefixes returns the system variable roots every rendering
// context guarantees, for use by template editors that want to surface
// autocomplete hints.
func ReservedPrefixes() []string {
	out := make([]string, len(reservedPrefixes))
	copy(out, reservedPrefixes)
	return out
}

// Input is everything needed to render one template for one send.
type Input struct {
	Subject string
	HTML    string
	// Text, if non-empty, is rendered as its own Liquid template. If
	// empty, the plain-text body is derived from the rendered HTML.
	Text string

	Data map[string]interface{}

	// BaseURL is the public tracking endpoint (SPEC_FULL.md §4.9),
	// e.g. "https://track.example.com". TrackingID is the 32-hex id
	// for this particular send.
	BaseURL    string
	TrackingID string
}

// Output is the fully rendered, link-rewritten, pixel-injected result.
type Output struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer executes Liquid templates and applies tracking-link rewriting,
// open-pixel injection, and plain-text fallback derivation.
type Renderer struct {
	engine *liquid.Engine
}

// New builds a Renderer with a fresh Liquid engine.
func New() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render executes in.Subject/HTML/Text against in.Data, rewrites tracked
// links and injects the open pixel into the HTML body, and derives a
// plain-text fallback when none is supplied.
func (r *Renderer) Render(in Input) (*Output, error) {
	bindings := withSpecialLinks(in.Data, in.BaseURL, in.TrackingID)

	subject, err := r.execute(in.Subject, bindings)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}

	html, err := r.execute(in.HTML, bindings)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	if in.BaseURL != "" && in.TrackingID != "" {
		html, err = rewriteLinks(html, in.BaseURL, in.TrackingID)
		if err != nil {
			return nil, fmt.Errorf("rewrite tracked links: %w", err)
		}
		html, err = injectOpenPixel(html, in.BaseURL, in.TrackingID)
		if err != nil {
			return nil, fmt.Errorf("inject open pixel: %w", err)
		}
	}

	var text string
	if in.Text != "" {
		text, err = r.execute(in.Text, bindings)
		if err != nil {
			return nil, fmt.Errorf("render text: %w", err)
		}
	} else {
		text, err = htmlToText(html)
		if err != nil {
			return nil, fmt.Errorf("derive text fallback: %w", err)
		}
	}

	return &Output{Subject: subject, HTML: html, Text: text}, nil
}

// execute parses and renders a single Liquid template string. A parse or
// render error surfaces to the caller rather than silently falling back,
// since a malformed template is a send-blocking validation failure, not a
// per-recipient runtime condition.
func (r *Renderer) execute(tpl string, bindings map[string]interface{}) (string, error) {
	if tpl == "" {
		return "", nil
	}
	return r.engine.ParseAndRenderString(tpl, bindings)
}

// withSpecialLinks overlays the tracking-endpoint placeholders
// ({{unsubscribe_link}}, {{view_in_browser_link}}, {{current_date}},
// {{current_year}}) onto the caller-supplied data without mutating it.
func withSpecialLinks(data map[string]interface{}, baseURL, trackingID string) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+4)
	for k, v := range data {
		out[k] = v
	}
	if baseURL != "" && trackingID != "" {
		if _, ok := out["unsubscribe_link"]; !ok {
			out["unsubscribe_link"] = fmt.Sprintf("%s/t/u/%s", baseURL, trackingID)
		}
		if _, ok := out["view_in_browser_link"]; !ok {
			out["view_in_browser_link"] = fmt.Sprintf("%s/t/v/%s", baseURL, trackingID)
		}
	}
	now := time.Now().UTC()
	if _, ok := out["current_date"]; !ok {
		out["current_date"] = now.Format("2006-01-02")
	}
	if _, ok := out["current_year"]; !ok {
		out["current_year"] = now.Year()
	}
	return out
}
