package httpd

import (
	"bufio"
	"bytes"
	"strconv"
	"time"
)

const serverName = "backend-base"

// HTTP date layout, always GMT
const httpTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

var statusText = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	304: "Not Modified",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	411: "Length Required",
	413: "Payload Too Large",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	505: "HTTP Version Not Supported",
}

func StatusText(code int) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "Unknown Status"
}

// ResponseWriter buffers the handler's output so the response always goes
// out with a correct Content-Length, which keep-alive depends on.
type ResponseWriter struct {
	status int
	header Header
	body   bytes.Buffer

	// headerOnly omits the body on the wire while Content-Length keeps
	// describing it, as HEAD requires.
	headerOnly bool
}

func newResponseWriter() *ResponseWriter {
	return &ResponseWriter{
		status: 200,
		header: make(Header),
	}
}

func (w *ResponseWriter) Header() Header {
	return w.header
}

func (w *ResponseWriter) WriteHeader(status int) {
	w.status = status
}

func (w *ResponseWriter) Status() int {
	return w.status
}

func (w *ResponseWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *ResponseWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *ResponseWriter) BodyLen() int {
	return w.body.Len()
}

// reset drops everything a handler wrote, used before answering a panic
// with a clean 500.
func (w *ResponseWriter) reset() {
	w.status = 200
	w.header = make(Header)
	w.body.Reset()
	w.headerOnly = false
}

// flush serializes the response: status line, headers, blank line, body.
func (w *ResponseWriter) flush(bw *bufio.Writer, proto string, keepAlive bool) error {
	text := StatusText(w.status)

	bw.WriteString(proto)
	bw.WriteByte(' ')
	bw.WriteString(strconv.Itoa(w.status))
	bw.WriteByte(' ')
	bw.WriteString(text)
	bw.WriteString("\r\n")

	if !w.header.Has("Content-Type") && w.body.Len() > 0 {
		w.header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.header.Set("Content-Length", strconv.Itoa(w.body.Len()))
	w.header.Set("Date", time.Now().UTC().Format(httpTimeFormat))
	w.header.Set("Server", serverName)

	if keepAlive {
		w.header.Set("Connection", "keep-alive")
	} else {
		w.header.Set("Connection", "close")
	}

	for name, value := range w.header {
		bw.WriteString(canonicalHeaderName(name))
		bw.WriteString(": ")
		bw.WriteString(value)
		bw.WriteString("\r\n")
	}

	bw.WriteString("\r\n")

	if !w.headerOnly {
		if _, err := bw.Write(w.body.Bytes()); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// canonicalHeaderName turns content-length into Content-Length for the
// wire; internally all names stay lower case.
func canonicalHeaderName(name string) string {
	b := []byte(name)
	upper := true
	for i, c := range b {
		if upper && 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
		upper = c == '-'
	}
	return string(b)
}
