package scroll

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Sternrassler/es-scroll-stream/pkg/queue"
	"github.com/Sternrassler/es-scroll-stream/pkg/response"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type failingWriter struct {
	limit int
	buf   bytes.Buffer
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.buf.Len()+len(p) > w.limit {
		return 0, errors.New("disk full")
	}
	return w.buf.Write(p)
}

func TestWriteArray(t *testing.T) {
	src := newScripted(
		scrollPage("123", "A", "B"),
		scrollPage("234", "C", "D"),
		scrollPage("x"),
	)

	var buf bytes.Buffer
	n, err := WriteArray(&buf, Start(context.Background(), src.fetch, DefaultConfig()))

	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.True(t, json.Valid(buf.Bytes()))

	var names []string
	for _, name := range gjson.GetBytes(buf.Bytes(), "#.name").Array() {
		names = append(names, name.String())
	}
	require.Equal(t, []string{"A", "B", "C", "D"}, names)
}

func TestWriteArrayEmptyRun(t *testing.T) {
	src := newScripted(scrollPage("x"))

	var buf bytes.Buffer
	n, err := WriteArray(&buf, Start(context.Background(), src.fetch, DefaultConfig()))

	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, "[]", buf.String())
}

func TestWriteArrayLeavesArrayOpenOnError(t *testing.T) {
	src := newScripted(scrollPage("1", "A"), response.NewPage(400, ""))

	var buf bytes.Buffer
	n, err := WriteArray(&buf, Start(context.Background(), src.fetch, DefaultConfig()))

	require.EqualError(t, err, "Unexpected status code 400")
	require.Equal(t, 1, n)
	require.Equal(t, `[{"name":"A"}`, buf.String())
	require.False(t, json.Valid(buf.Bytes()))
}

func TestWriteArrayMatchesHitStream(t *testing.T) {
	pages := func() *scripted {
		return newScripted(scrollPage("a", "A", "B", "C"), scrollPage("b", "D"), scrollPage("c"))
	}

	var buf bytes.Buffer
	_, err := WriteArray(&buf, Start(context.Background(), pages().fetch, DefaultConfig()))
	require.NoError(t, err)

	var fromArray []json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromArray))

	out := Start(context.Background(), pages().fetch, DefaultConfig())
	var fromStream []json.RawMessage
	for out.Next() {
		fromStream = append(fromStream, out.Hit())
	}
	<-out.Done()

	require.Equal(t, fromStream, fromArray)
}

func TestWriteArrayWriterError(t *testing.T) {
	src := newScripted(scrollPage("a", "A", "B"), scrollPage("b", "C"), scrollPage("c"))
	w := &failingWriter{limit: len(`[{"name":"A"}`)}

	out := Start(context.Background(), src.fetch, DefaultConfig())
	n, err := WriteArray(w, out)

	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, n)

	select {
	case <-out.Done():
	default:
		t.Fatal("run still draining after WriteArray returned")
	}
	require.ErrorIs(t, out.Err(), queue.ErrClosed)
}

func TestWriteArrayOpeningBracketError(t *testing.T) {
	src := newScripted(scrollPage("a", "A"), scrollPage("b"))

	out := Start(context.Background(), src.fetch, DefaultConfig())
	n, err := WriteArray(&failingWriter{}, out)

	require.ErrorContains(t, err, "disk full")
	require.Zero(t, n)

	select {
	case <-out.Done():
	default:
		t.Fatal("run still draining after WriteArray returned")
	}
	require.ErrorIs(t, out.Err(), queue.ErrClosed)
}

func TestWriteArrayFuncProjectsHits(t *testing.T) {
	src := newScripted(
		scrollPage("123", "A", "B"),
		scrollPage("x"),
	)

	var buf bytes.Buffer
	n, err := WriteArrayFunc(&buf, Start(context.Background(), src.fetch, DefaultConfig()), func(h Hit) Hit {
		return Hit(gjson.GetBytes(h, "name").Raw)
	})

	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.JSONEq(t, `["A","B"]`, buf.String())
}
