package httpd_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caiquemiranda/backend-base/internal/fcache"
	"github.com/caiquemiranda/backend-base/internal/httpd"
	"github.com/caiquemiranda/backend-base/internal/logger"
)

func startServer(t *testing.T, h httpd.Handler) (*httpd.Server, string) {
	t.Helper()
	logger.Discard()

	srv := httpd.NewServer(httpd.Config{Addr: "127.0.0.1:0"}, h)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = srv.Serve(ln)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return srv, "http://" + ln.Addr().String()
}

func testRouter() *httpd.Router {
	rt := httpd.NewRouter()

	rt.GET("/hello", func(w *httpd.ResponseWriter, r *httpd.Request) {
		w.WriteString("hello world")
	})

	rt.POST("/echo", func(w *httpd.ResponseWriter, r *httpd.Request) {
		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		_, _ = w.Write(r.Body)
	})

	rt.GET("/boom", func(w *httpd.ResponseWriter, r *httpd.Request) {
		panic("kaboom")
	})

	return rt
}

func TestServer_ServesRealHTTPClients(t *testing.T) {
	_, base := startServer(t, testRouter())

	t.Run("simple get", func(t *testing.T) {
		resp, err := http.Get(base + "/hello")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "hello world", string(body))
		assert.Equal(t, "backend-base", resp.Header.Get("Server"))
		assert.NotEmpty(t, resp.Header.Get("Date"))
	})

	t.Run("post body is echoed", func(t *testing.T) {
		resp, err := http.Post(base+"/echo", "application/json", strings.NewReader(`{"a":1}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("head reports the entity length without a body", func(t *testing.T) {
		resp, err := http.Head(base + "/hello")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int64(len("hello world")), resp.ContentLength)
		assert.Empty(t, body)
	})

	t.Run("unknown path", func(t *testing.T) {
		resp, err := http.Get(base + "/nowhere")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 404, resp.StatusCode)
	})

	t.Run("handler panic turns into 500 and the server survives", func(t *testing.T) {
		resp, err := http.Get(base + "/boom")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 500, resp.StatusCode)

		resp, err = http.Get(base + "/hello")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 200, resp.StatusCode)
	})
}

func TestServer_KeepAliveOnRawConn(t *testing.T) {
	_, base := startServer(t, testRouter())
	addr := strings.TrimPrefix(base, "http://")

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	br := bufio.NewReader(conn)

	for i := 0; i < 3; i++ {
		_, err = fmt.Fprintf(conn, "GET /hello HTTP/1.1\r\nHost: %s\r\n\r\n", addr)
		require.NoError(t, err)

		resp, err := http.ReadResponse(br, nil)
		require.NoError(t, err, "request %d on the same connection", i)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "hello world", string(body))
		assert.Equal(t, "keep-alive", resp.Header.Get("Connection"))
	}
}

func TestServer_ConnectionCloseIsHonored(t *testing.T) {
	_, base := startServer(t, testRouter())
	addr := strings.TrimPrefix(base, "http://")

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = fmt.Fprintf(conn, "GET /hello HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", addr)
	require.NoError(t, err)

	raw, err := io.ReadAll(conn)
	require.NoError(t, err)

	assert.Contains(t, string(raw), "HTTP/1.1 200 OK")
	assert.Contains(t, string(raw), "Connection: close")
}

func TestServer_BadRequests(t *testing.T) {
	_, base := startServer(t, testRouter())
	addr := strings.TrimPrefix(base, "http://")

	tt := []struct {
		name string
		raw  string
		want string
	}{
		{name: "garbage request line", raw: "TOTAL GARBAGE\r\n\r\n", want: "400"},
		{name: "http2 is not supported", raw: "GET /hello HTTP/2.0\r\n\r\n", want: "505"},
		{name: "post without length", raw: "POST /echo HTTP/1.1\r\nHost: x\r\n\r\n", want: "411"},
		{name: "chunked not implemented", raw: "POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n", want: "501"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			conn, err := net.Dial("tcp", addr)
			require.NoError(t, err)
			defer conn.Close()

			_, err = conn.Write([]byte(tc.raw))
			require.NoError(t, err)

			raw, err := io.ReadAll(conn)
			require.NoError(t, err)
			assert.Contains(t, string(raw), "HTTP/1.1 "+tc.want)
		})
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	srv, base := startServer(t, testRouter())

	resp, err := http.Get(base + "/hello")
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	client := &http.Client{Timeout: 500 * time.Millisecond}
	_, err = client.Get(base + "/hello")
	assert.Error(t, err)
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>home</h1>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "site.css"), []byte("body{}"), 0o644))

	cache, err := fcache.New(2, 1<<20)
	require.NoError(t, err)

	rt := httpd.NewRouter()
	rt.GET("/static/*", httpd.StaticDir(dir, cache))

	_, base := startServer(t, rt)

	t.Run("nested file with mime type", func(t *testing.T) {
		resp, err := http.Get(base + "/static/css/site.css")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "body{}", string(body))
		assert.Equal(t, "text/css; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.NotEmpty(t, resp.Header.Get("Etag"))
	})

	t.Run("directory serves index html", func(t *testing.T) {
		resp, err := http.Get(base + "/static/")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "<h1>home</h1>", string(body))
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	})

	t.Run("etag revalidation returns 304", func(t *testing.T) {
		resp, err := http.Get(base + "/static/index.html")
		require.NoError(t, err)
		resp.Body.Close()
		etag := resp.Header.Get("Etag")
		require.NotEmpty(t, etag)

		req, err := http.NewRequest("GET", base+"/static/index.html", nil)
		require.NoError(t, err)
		req.Header.Set("If-None-Match", etag)

		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 304, resp.StatusCode)
	})

	t.Run("missing file", func(t *testing.T) {
		resp, err := http.Get(base + "/static/nope.txt")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 404, resp.StatusCode)
	})

	t.Run("second read comes from cache", func(t *testing.T) {
		before := cache.Count()
		resp, err := http.Get(base + "/static/css/site.css")
		require.NoError(t, err)
		resp.Body.Close()
		assert.GreaterOrEqual(t, cache.Count(), before)
	})
}
