package httpd

import (
	"bufio"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrMalformedRequest     = errors.New("malformed http request")
	ErrUnsupportedProto     = errors.New("unsupported protocol version")
	ErrHeaderTooLarge       = errors.New("header section too large")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrLengthRequired       = errors.New("content length required")
	ErrUnsupportedTransfer  = errors.New("unsupported transfer encoding")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

const (
	maxRequestLineBytes = 8 << 10
	maxHeaderBytes      = 64 << 10
	maxHeaderCount      = 128
)

// Header holds request and response headers under lower-cased names.
// Repeated request headers keep the last value.
type Header map[string]string

func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

func (h Header) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

func (h Header) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}

func (h Header) Del(name string) {
	delete(h, strings.ToLower(name))
}

type Request struct {
	Method     string
	Path       string
	Proto      string
	Header     Header
	Query      url.Values
	Body       []byte
	Params     map[string]string
	RemoteAddr string
}

// Param returns a path parameter captured by the router, e.g. ":id".
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// FormValues decodes an application/x-www-form-urlencoded body.
func (r *Request) FormValues() (url.Values, error) {
	ct := r.Header.Get("Content-Type")
	if mediaType(ct) != "application/x-www-form-urlencoded" {
		return nil, errors.Wrapf(ErrUnsupportedMediaType, "content type %q is not a form", ct)
	}

	vals, err := url.ParseQuery(string(r.Body))
	if err != nil {
		return nil, errors.Wrap(ErrMalformedRequest, err.Error())
	}

	return vals, nil
}

// keepAlive reports whether the connection survives this exchange:
// HTTP/1.1 unless the client said close, HTTP/1.0 only on explicit
// keep-alive.
func (r *Request) keepAlive() bool {
	conn := strings.ToLower(r.Header.Get("Connection"))
	if r.Proto == "HTTP/1.0" {
		return conn == "keep-alive"
	}
	return conn != "close"
}

func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// readRequest parses one request off the wire: request line, header block,
// then a Content-Length delimited body. io.EOF before the first byte means
// the client simply closed an idle connection.
func readRequest(br *bufio.Reader, maxBodyBytes int64) (*Request, error) {
	line, err := readLimitedLine(br, maxRequestLineBytes)
	if err != nil {
		return nil, err
	}

	method, rawTarget, proto, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method: method,
		Proto:  proto,
		Header: make(Header),
	}

	if err := parseTarget(req, rawTarget); err != nil {
		return nil, err
	}

	if err := readHeaderBlock(br, req.Header); err != nil {
		return nil, err
	}

	if err := readBody(br, req, maxBodyBytes); err != nil {
		return nil, err
	}

	return req, nil
}

func parseRequestLine(line string) (method, target, proto string, err error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", errors.Wrapf(ErrMalformedRequest, "bad request line %q", line)
	}

	method, target, proto = parts[0], parts[1], parts[2]

	if method == "" || target == "" {
		return "", "", "", errors.Wrapf(ErrMalformedRequest, "bad request line %q", line)
	}

	for _, c := range method {
		if c < 'A' || c > 'Z' {
			return "", "", "", errors.Wrapf(ErrMalformedRequest, "bad method %q", method)
		}
	}

	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return "", "", "", errors.Wrapf(ErrUnsupportedProto, "%q", proto)
	}

	return method, target, proto, nil
}

func parseTarget(req *Request, rawTarget string) error {
	u, err := url.ParseRequestURI(rawTarget)
	if err != nil {
		return errors.Wrapf(ErrMalformedRequest, "bad request target %q", rawTarget)
	}

	req.Path = u.Path
	req.Query = u.Query()
	return nil
}

func readHeaderBlock(br *bufio.Reader, h Header) error {
	var total int

	for count := 0; ; count++ {
		if count > maxHeaderCount {
			return errors.Wrapf(ErrHeaderTooLarge, "more than %d headers", maxHeaderCount)
		}

		line, err := readLimitedLine(br, maxHeaderBytes)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.Wrap(ErrMalformedRequest, "header block not terminated")
			}
			return err
		}

		if line == "" {
			return nil
		}

		total += len(line)
		if total > maxHeaderBytes {
			return errors.Wrapf(ErrHeaderTooLarge, "header block exceeds %d bytes", maxHeaderBytes)
		}

		name, value, found := strings.Cut(line, ":")
		if !found || name == "" || strings.ContainsAny(name, " \t") {
			return errors.Wrapf(ErrMalformedRequest, "bad header line %q", line)
		}

		h.Set(name, strings.TrimSpace(value))
	}
}

func readBody(br *bufio.Reader, req *Request, maxBodyBytes int64) error {
	if te := req.Header.Get("Transfer-Encoding"); te != "" && !strings.EqualFold(te, "identity") {
		return errors.Wrapf(ErrUnsupportedTransfer, "transfer encoding %q", te)
	}

	cl := req.Header.Get("Content-Length")
	if cl == "" {
		if req.Method == "POST" || req.Method == "PUT" || req.Method == "PATCH" {
			return errors.Wrapf(ErrLengthRequired, "method %s needs a content length", req.Method)
		}
		return nil
	}

	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return errors.Wrapf(ErrMalformedRequest, "bad content length %q", cl)
	}

	if n > maxBodyBytes {
		return errors.Wrapf(ErrBodyTooLarge, "content length %d exceeds limit %d", n, maxBodyBytes)
	}

	if n == 0 {
		return nil
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		return errors.Wrap(ErrMalformedRequest, "body shorter than content length")
	}

	req.Body = body
	return nil
}

// readLimitedLine reads a CRLF (or bare LF) terminated line without ever
// buffering more than limit bytes.
func readLimitedLine(br *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder

	for {
		chunk, err := br.ReadSlice('\n')
		sb.Write(chunk)

		if sb.Len() > limit {
			return "", errors.Wrapf(ErrHeaderTooLarge, "line exceeds %d bytes", limit)
		}

		if err == nil {
			break
		}

		if err == bufio.ErrBufferFull {
			continue
		}

		if sb.Len() > 0 && errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}

		return "", err
	}

	line := sb.String()
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}
