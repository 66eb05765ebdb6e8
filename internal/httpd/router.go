package httpd

import (
	"sort"
	"strings"
)

type Handler interface {
	Serve(w *ResponseWriter, r *Request)
}

type HandlerFunc func(w *ResponseWriter, r *Request)

func (f HandlerFunc) Serve(w *ResponseWriter, r *Request) {
	f(w, r)
}

type route struct {
	method   string
	segments []string
	handler  HandlerFunc
}

// Router dispatches on method and path. Patterns are literal segments,
// ":name" parameters and a trailing "*" that swallows the rest of the path:
//
//	r.GET("/api/tasks/:id", handler)
//	r.GET("/static/*", fileHandler)
//
// An unknown path answers 404; a known path with the wrong method answers
// 405 with an Allow header.
type Router struct {
	routes   []*route
	NotFound HandlerFunc
}

func NewRouter() *Router {
	return &Router{}
}

func (rt *Router) Handle(method, pattern string, h HandlerFunc) {
	rt.routes = append(rt.routes, &route{
		method:   method,
		segments: splitPath(pattern),
		handler:  h,
	})
}

func (rt *Router) GET(pattern string, h HandlerFunc)    { rt.Handle("GET", pattern, h) }
func (rt *Router) POST(pattern string, h HandlerFunc)   { rt.Handle("POST", pattern, h) }
func (rt *Router) PUT(pattern string, h HandlerFunc)    { rt.Handle("PUT", pattern, h) }
func (rt *Router) DELETE(pattern string, h HandlerFunc) { rt.Handle("DELETE", pattern, h) }

func (rt *Router) Serve(w *ResponseWriter, r *Request) {
	h, params, allowed := rt.lookup(r.Method, r.Path)
	if h != nil {
		r.Params = params
		h(w, r)
		return
	}

	if len(allowed) > 0 {
		if r.Method == "HEAD" {
			// HEAD falls back to GET: the entity Content-Length stays,
			// only the body is withheld
			if gh, gp, _ := rt.lookup("GET", r.Path); gh != nil {
				r.Params = gp
				gh(w, r)
				w.headerOnly = true
				return
			}
		}

		sort.Strings(allowed)
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		w.WriteHeader(405)
		w.WriteString(StatusText(405) + "\n")
		return
	}

	if rt.NotFound != nil {
		rt.NotFound(w, r)
		return
	}

	w.WriteHeader(404)
	w.WriteString(StatusText(404) + "\n")
}

func (rt *Router) lookup(method, path string) (HandlerFunc, map[string]string, []string) {
	segments := splitPath(path)

	var allowed []string
	for _, rte := range rt.routes {
		params, ok := match(rte.segments, segments)
		if !ok {
			continue
		}

		if rte.method == method {
			return rte.handler, params, nil
		}

		allowed = append(allowed, rte.method)
	}

	return nil, nil, allowed
}

func match(pattern, segments []string) (map[string]string, bool) {
	params := make(map[string]string)

	for i, p := range pattern {
		if p == "*" {
			params["*"] = strings.Join(segments[i:], "/")
			return params, true
		}

		if i >= len(segments) {
			return nil, false
		}

		if strings.HasPrefix(p, ":") {
			if segments[i] == "" {
				return nil, false
			}
			params[p[1:]] = segments[i]
			continue
		}

		if p != segments[i] {
			return nil, false
		}
	}

	if len(segments) != len(pattern) {
		return nil, false
	}

	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
