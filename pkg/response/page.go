// Package response decodes scroll search pages incrementally.
//
// A Parser makes a single pass over a page body and reports each hit source
// and the page's continuation token to a Handler as soon as they are decoded,
// so the first hit of a large page is available long before its last byte
// arrives. The token may appear before or after the hits array.
package response

import (
	"io"
	"net/http"
	"strings"
)

// Page is one fetched page. StatusCode is known before any body byte is read.
// Zero means the producer has no status to report.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// FromHTTP wraps an HTTP response. The caller hands ownership of the body
// to the returned Page.
func FromHTTP(resp *http.Response) *Page {
	return &Page{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}
}

// NewPage builds a page from a literal body.
func NewPage(statusCode int, body string) *Page {
	return &Page{
		StatusCode: statusCode,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// Success reports whether the page carries no status code or one in the 2xx
// range.
func (p *Page) Success() bool {
	return p.StatusCode == 0 || (p.StatusCode >= 200 && p.StatusCode < 300)
}

// Close releases the body. It is safe to call on a page without a body.
func (p *Page) Close() error {
	if p == nil || p.Body == nil {
		return nil
	}
	return p.Body.Close()
}
