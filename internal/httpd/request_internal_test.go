package httpd

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reader(raw string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(raw))
}

func TestReadRequest(t *testing.T) {
	t.Run("get with query string", func(t *testing.T) {
		req, err := readRequest(reader("GET /api/tasks?completed=true&page=2 HTTP/1.1\r\nHost: localhost\r\n\r\n"), 1024)
		require.NoError(t, err)

		assert.Equal(t, "GET", req.Method)
		assert.Equal(t, "/api/tasks", req.Path)
		assert.Equal(t, "HTTP/1.1", req.Proto)
		assert.Equal(t, "true", req.Query.Get("completed"))
		assert.Equal(t, "2", req.Query.Get("page"))
		assert.Equal(t, "localhost", req.Header.Get("Host"))
		assert.Nil(t, req.Body)
	})

	t.Run("post with body", func(t *testing.T) {
		raw := "POST /api/tasks HTTP/1.1\r\nHost: x\r\nContent-Type: application/json\r\nContent-Length: 13\r\n\r\n{\"title\":\"a\"}"
		req, err := readRequest(reader(raw), 1024)
		require.NoError(t, err)

		assert.Equal(t, `{"title":"a"}`, string(req.Body))
	})

	t.Run("header names are case insensitive", func(t *testing.T) {
		req, err := readRequest(reader("GET / HTTP/1.1\r\ncOnTeNt-TyPe: text/plain\r\n\r\n"), 1024)
		require.NoError(t, err)

		assert.Equal(t, "text/plain", req.Header.Get("Content-Type"))
		assert.True(t, req.Header.Has("content-type"))
	})

	t.Run("post without content length", func(t *testing.T) {
		_, err := readRequest(reader("POST /submit HTTP/1.1\r\nHost: x\r\n\r\n"), 1024)
		assert.True(t, errors.Is(err, ErrLengthRequired))
	})

	t.Run("body over the limit", func(t *testing.T) {
		_, err := readRequest(reader("POST / HTTP/1.1\r\nContent-Length: 9999\r\n\r\n"), 1024)
		assert.True(t, errors.Is(err, ErrBodyTooLarge))
	})

	t.Run("chunked encoding is not implemented", func(t *testing.T) {
		_, err := readRequest(reader("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"), 1024)
		assert.True(t, errors.Is(err, ErrUnsupportedTransfer))
	})

	t.Run("unknown protocol version", func(t *testing.T) {
		_, err := readRequest(reader("GET / HTTP/2.0\r\n\r\n"), 1024)
		assert.True(t, errors.Is(err, ErrUnsupportedProto))
	})

	t.Run("garbage request line", func(t *testing.T) {
		_, err := readRequest(reader("NOT A REQUEST LINE AT ALL\r\n\r\n"), 1024)
		assert.True(t, errors.Is(err, ErrMalformedRequest))
	})

	t.Run("closed idle connection reports eof", func(t *testing.T) {
		_, err := readRequest(reader(""), 1024)
		assert.True(t, errors.Is(err, io.EOF))
	})

	t.Run("lf only line endings are tolerated", func(t *testing.T) {
		req, err := readRequest(reader("GET /x HTTP/1.1\nHost: y\n\n"), 1024)
		require.NoError(t, err)
		assert.Equal(t, "/x", req.Path)
		assert.Equal(t, "y", req.Header.Get("Host"))
	})
}

func TestRequest_FormValues(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: 17\r\n\r\nname=ana&city=lis"
	req, err := readRequest(reader(raw), 1024)
	require.NoError(t, err)

	vals, err := req.FormValues()
	require.NoError(t, err)
	assert.Equal(t, "ana", vals.Get("name"))
	assert.Equal(t, "lis", vals.Get("city"))

	req.Header.Set("Content-Type", "application/json")
	_, err = req.FormValues()
	assert.True(t, errors.Is(err, ErrUnsupportedMediaType))
}

func TestRequest_KeepAlive(t *testing.T) {
	tt := []struct {
		name  string
		proto string
		conn  string
		want  bool
	}{
		{name: "http11 default", proto: "HTTP/1.1", conn: "", want: true},
		{name: "http11 explicit close", proto: "HTTP/1.1", conn: "close", want: false},
		{name: "http10 default", proto: "HTTP/1.0", conn: "", want: false},
		{name: "http10 explicit keepalive", proto: "HTTP/1.0", conn: "keep-alive", want: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			r := &Request{Proto: tc.proto, Header: make(Header)}
			if tc.conn != "" {
				r.Header.Set("Connection", tc.conn)
			}
			assert.Equal(t, tc.want, r.keepAlive())
		})
	}
}

func TestCanonicalHeaderName(t *testing.T) {
	assert.Equal(t, "Content-Length", canonicalHeaderName("content-length"))
	assert.Equal(t, "Etag", canonicalHeaderName("etag"))
	assert.Equal(t, "X-Request-Id", canonicalHeaderName("x-request-id"))
}
