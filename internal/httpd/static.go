package httpd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/caiquemiranda/backend-base/internal/fcache"
)

// StaticDir serves files below root. Mount it on a trailing wildcard:
//
//	r.GET("/static/*", httpd.StaticDir("./public", cache))
//
// Directory requests fall back to index.html. Contents go through the LRU
// cache keyed by path, size and mtime, so an edited file is picked up on
// the next request without any invalidation hook.
func StaticDir(root string, cache *fcache.Cache) HandlerFunc {
	return func(w *ResponseWriter, r *Request) {
		rel := r.Param("*")

		clean := filepath.Clean("/" + rel)
		if strings.Contains(clean, "..") {
			w.WriteHeader(403)
			w.WriteString(StatusText(403) + "\n")
			return
		}

		full := filepath.Join(root, clean)

		info, err := os.Stat(full)
		if err == nil && info.IsDir() {
			full = filepath.Join(full, "index.html")
			info, err = os.Stat(full)
		}

		if err != nil || info.IsDir() {
			w.WriteHeader(404)
			w.WriteString(StatusText(404) + "\n")
			return
		}

		content, err := readThroughCache(cache, full, info)
		if err != nil {
			w.WriteHeader(500)
			w.WriteString(StatusText(500) + "\n")
			return
		}

		etag := fmt.Sprintf(`"%x"`, xxhash.Sum64(content))
		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("Etag", etag)
			w.WriteHeader(304)
			return
		}

		w.Header().Set("Content-Type", MIMEByExtension(full))
		w.Header().Set("Etag", etag)
		_, _ = w.Write(content)
	}
}

func readThroughCache(cache *fcache.Cache, path string, info os.FileInfo) ([]byte, error) {
	if cache == nil {
		return os.ReadFile(path)
	}

	key := fcache.Key(fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano()))
	if content, ok := cache.Get(key); ok {
		return content, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cache.Put(key, content)
	return content, nil
}
