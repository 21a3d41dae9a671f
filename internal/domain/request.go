package domain

import (
	"net/url"
	"strings"
)

// Method is the HTTP method a render request arrived with; it decides where
// the HTML was read from.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

const (
	skeletonHead = `<!DOCTYPE html><html><head><meta charset="UTF-8"><style>body{font-family:Arial,sans-serif;margin:20px;}</style></head><body>`
	skeletonTail = `</body></html>`
)

// RenderRequest is the per-request input of the export endpoint.
type RenderRequest struct {
	HTML   string
	Method Method
}

// Document returns the normalized document that is handed to a Renderer.
func (r RenderRequest) Document() string {
	return Normalize(r.HTML)
}

// Normalize decodes percent-encoded input once and wraps fragments that have
// no <html tag in a minimal UTF-8 document.
//
// Decoding only happens when the input contains '%'. Input that is not valid
// percent-encoding (a literal "100%" in markup) is kept as is.
func Normalize(raw string) string {
	doc := raw
	if strings.Contains(doc, "%") {
		if decoded, err := url.PathUnescape(doc); err == nil {
			doc = decoded
		}
	}
	if !strings.Contains(doc, "<html") {
		doc = skeletonHead + doc + skeletonTail
	}
	return doc
}
