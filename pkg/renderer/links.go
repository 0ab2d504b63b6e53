package renderer

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var unresolvedLiquidTag = regexp.MustCompile(`\{\{.*\}\}`)

// specialLinkSuffixes are the tracking-endpoint paths a rewritten href
// must never be wrapped again, so an already-substituted
// {{unsubscribe_link}}/{{view_in_browser_link}} survives link rewriting
// untouched.
var specialLinkSuffixes = []string{"/t/u/", "/t/v/", "/t/o/", "/t/c/"}

// rewriteLinks walks every <a href> in DOM order and replaces trackable
// hrefs with a click-redirect URL carrying a deterministic, 0-based
// linkIndex. mailto:, tel:, #anchor, links still containing an
// unresolved {{ }} tag, and links already pointing at the tracking
// endpoint are left untouched.
func rewriteLinks(html, baseURL, trackingID string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html for link rewriting: %w", err)
	}

	index := 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !isTrackableLink(href, baseURL) {
			return
		}
		redirect := fmt.Sprintf("%s/t/c/%s/%d?url=%s", baseURL, url.PathEscape(trackingID), index, url.QueryEscape(href))
		s.SetAttr("href", redirect)
		index++
	})

	return renderDocument(doc)
}

func isTrackableLink(href, baseURL string) bool {
	if href == "" || href == "#" {
		return false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return false
	}
	if strings.HasPrefix(href, "#") {
		return false
	}
	if unresolvedLiquidTag.MatchString(href) {
		return false
	}
	if baseURL != "" && strings.HasPrefix(href, baseURL) {
		for _, suffix := range specialLinkSuffixes {
			if strings.Contains(href, suffix) {
				return false
			}
		}
	}
	return true
}

// injectOpenPixel appends a 1x1 tracking pixel <img> right before
// </body> (or at the end of the document if no body element exists).
func injectOpenPixel(html, baseURL, trackingID string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html for pixel injection: %w", err)
	}

	pixelURL := fmt.Sprintf("%s/t/o/%s", baseURL, url.PathEscape(trackingID))
	pixelTag := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:block" />`, pixelURL)

	if body := doc.Find("body"); body.Length() > 0 {
		body.AppendHtml(pixelTag)
	} else {
		doc.Find("html").AppendHtml(pixelTag)
	}

	return renderDocument(doc)
}

func renderDocument(doc *goquery.Document) (string, error) {
	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serialize html: %w", err)
	}
	return out, nil
}

// htmlToText derives a plain-text fallback from rendered HTML: strip
// <style>/<script> blocks, strip remaining tags, collapse whitespace.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html for text fallback: %w", err)
	}

	doc.Find("style, script").Remove()
	text := doc.Text()

	fields := strings.Fields(text)
	return strings.Join(fields, " "), nil
}
