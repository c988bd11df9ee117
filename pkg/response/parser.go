package response

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Handler receives the events of one page in document order.
// Returning an error stops parsing and Parse returns that error unchanged.
type Handler interface {
	OnToken(token string) error
	OnItem(item json.RawMessage) error
}

// HandlerFuncs adapts plain functions to Handler. Nil fields ignore the event.
type HandlerFuncs struct {
	Token func(token string) error
	Item  func(item json.RawMessage) error
}

// OnToken implements Handler.
func (h HandlerFuncs) OnToken(token string) error {
	if h.Token == nil {
		return nil
	}
	return h.Token(token)
}

// OnItem implements Handler.
func (h HandlerFuncs) OnItem(item json.RawMessage) error {
	if h.Item == nil {
		return nil
	}
	return h.Item(item)
}

// Parser locates the continuation token and the item array inside a page.
type Parser struct {
	// TokenPath is the object path of the continuation token.
	TokenPath []string

	// ItemsPath is the object path of the array of records.
	ItemsPath []string

	// SourceField is the record field holding the item. Records without it
	// are skipped. Empty means the whole record is the item.
	SourceField string
}

// DefaultParser returns a parser for Elasticsearch scroll responses:
//
//	{"_scroll_id": "...", "hits": {"hits": [{"_source": {...}}]}}
func DefaultParser() Parser {
	return Parser{
		TokenPath:   []string{"_scroll_id"},
		ItemsPath:   []string{"hits", "hits"},
		SourceField: "_source",
	}
}

// ParsePath splits a dotted path such as "hits.hits".
func ParsePath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Parse checks the page status and then decodes the body in a single pass,
// calling h for the token and for every item. A status outside 2xx returns a
// *StatusError before the body is read; a page without a status code is
// parsed. A malformed body, including data after the root value, returns a
// *ParseError. An empty body yields no events and no error. The body is
// always closed.
func (p Parser) Parse(ctx context.Context, page *Page, h Handler) error {
	if page == nil {
		return ErrNilPage
	}
	defer page.Close()

	if !page.Success() {
		return &StatusError{StatusCode: page.StatusCode}
	}
	if page.Body == nil {
		return nil
	}

	w := &walker{
		ctx:    ctx,
		dec:    json.NewDecoder(page.Body),
		parser: p,
		h:      h,
	}

	err := w.walk(nil)
	if err == nil {
		err = w.end()
	}
	if err == nil {
		return nil
	}

	var he *handlerError
	switch {
	case errors.As(err, &he):
		return he.err
	case errors.Is(err, io.EOF) && !w.started:
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &ParseError{Offset: w.offset(), Err: err}
}

type walker struct {
	ctx       context.Context
	dec       *json.Decoder
	parser    Parser
	h         Handler
	started   bool
	tokenSeen bool
}

func (w *walker) offset() int64 {
	return w.dec.InputOffset()
}

// end checks that nothing but whitespace follows the root value.
func (w *walker) end() error {
	tok, err := w.dec.Token()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	}
	return fmt.Errorf("unexpected %v after root value", tok)
}

// walk consumes one value located at path.
func (w *walker) walk(path []string) error {
	tok, err := w.dec.Token()
	if err != nil {
		return err
	}
	w.started = true

	delim, ok := tok.(json.Delim)
	if !ok {
		if s, isString := tok.(string); isString && s != "" && w.isToken(path) {
			return w.token(s)
		}
		return nil
	}

	switch delim {
	case '{':
		for w.dec.More() {
			keyTok, err := w.dec.Token()
			if err != nil {
				return err
			}
			key, _ := keyTok.(string)
			child := append(slices.Clip(path), key)

			if w.relevant(child) {
				err = w.walk(child)
			} else {
				err = w.skip()
			}
			if err != nil {
				return err
			}
		}
	case '[':
		if w.isItems(path) {
			if err := w.items(); err != nil {
				return err
			}
		} else {
			for w.dec.More() {
				if err := w.skip(); err != nil {
					return err
				}
			}
		}
	}

	// Closing delimiter.
	_, err = w.dec.Token()
	return err
}

// items decodes the records of the item array one at a time.
func (w *walker) items() error {
	for w.dec.More() {
		if err := w.ctx.Err(); err != nil {
			return err
		}

		var record json.RawMessage
		if err := w.dec.Decode(&record); err != nil {
			return err
		}

		item, ok := w.source(record)
		if !ok {
			continue
		}
		if err := w.h.OnItem(item); err != nil {
			return &handlerError{err: err}
		}
	}
	return nil
}

func (w *walker) source(record json.RawMessage) (json.RawMessage, bool) {
	if w.parser.SourceField == "" {
		return record, true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(record, &fields); err != nil {
		return nil, false
	}
	src, ok := fields[w.parser.SourceField]
	if !ok || bytes.Equal(src, []byte("null")) {
		return nil, false
	}
	return src, true
}

func (w *walker) token(s string) error {
	if w.tokenSeen {
		return nil
	}
	w.tokenSeen = true
	if err := w.h.OnToken(s); err != nil {
		return &handlerError{err: err}
	}
	return nil
}

// skip consumes one value without retaining it.
func (w *walker) skip() error {
	depth := 0
	for {
		tok, err := w.dec.Token()
		if err != nil {
			return err
		}
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}

func (w *walker) isToken(path []string) bool {
	return slices.Equal(path, w.parser.TokenPath)
}

func (w *walker) isItems(path []string) bool {
	return slices.Equal(path, w.parser.ItemsPath)
}

// relevant reports whether path is, or leads to, the token or the items.
func (w *walker) relevant(path []string) bool {
	return hasPrefix(w.parser.TokenPath, path) || hasPrefix(w.parser.ItemsPath, path)
}

func hasPrefix(full, prefix []string) bool {
	return len(prefix) <= len(full) && slices.Equal(full[:len(prefix)], prefix)
}
