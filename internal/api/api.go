// Package api exposes the JSON CRUD resources over httpd, persisting
// records in filedb under colon-segmented keys (task:12, product:3).
package api

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/caiquemiranda/backend-base/internal/filedb"
	"github.com/caiquemiranda/backend-base/internal/httpd"
)

var ErrValidation = errors.New("validation failed")

type Service struct {
	db         *filedb.DB
	corsOrigin string

	nextTaskID    atomic.Uint64
	nextProductID atomic.Uint64
}

type Option func(*Service)

func WithCORSOrigin(origin string) Option {
	return func(s *Service) {
		s.corsOrigin = origin
	}
}

// New builds the service and seeds the id counters from whatever is
// already in the store.
func New(db *filedb.DB, opts ...Option) (*Service, error) {
	s := &Service{db: db}
	for _, opt := range opts {
		opt(s)
	}

	s.nextTaskID.Store(maxID(db, taskPrefix))
	s.nextProductID.Store(maxID(db, productPrefix))

	return s, nil
}

func maxID(db *filedb.DB, prefix string) uint64 {
	var max uint64
	_ = db.View(context.Background(), func(tx *filedb.Tx) error {
		// descending prefix scan puts the highest numeric id first
		docs := tx.FindPrefix(prefix, filedb.DescOrder)
		if len(docs) > 0 {
			if id, err := idFromKey(docs[0].Key(), prefix); err == nil {
				max = uint64(id)
			}
		}
		return nil
	})
	return max
}

// Register wires every endpoint into the router.
func (s *Service) Register(r *httpd.Router) {
	r.GET("/", s.handleInfo)
	r.GET("/healthz", s.handleHealth)

	r.GET("/api/tasks", s.handleListTasks)
	r.POST("/api/tasks", s.handleCreateTask)
	r.GET("/api/tasks/:id", s.handleGetTask)
	r.PUT("/api/tasks/:id", s.handleUpdateTask)
	r.DELETE("/api/tasks/:id", s.handleDeleteTask)

	r.GET("/api/products", s.handleListProducts)
	r.POST("/api/products", s.handleCreateProduct)
	r.GET("/api/products/:id", s.handleGetProduct)
	r.PUT("/api/products/:id", s.handleUpdateProduct)
	r.DELETE("/api/products/:id", s.handleDeleteProduct)

	if s.corsOrigin != "" {
		r.Handle("OPTIONS", "/api/*", s.handlePreflight)
	}
}

func (s *Service) handleInfo(w *httpd.ResponseWriter, r *httpd.Request) {
	s.respond(w, 200, map[string]interface{}{
		"service": "backend-base",
		"endpoints": []string{
			"/healthz",
			"/api/tasks",
			"/api/tasks/:id",
			"/api/products",
			"/api/products/:id",
		},
	})
}

func (s *Service) handleHealth(w *httpd.ResponseWriter, r *httpd.Request) {
	s.respond(w, 200, map[string]string{"status": "ok"})
}

func (s *Service) handlePreflight(w *httpd.ResponseWriter, r *httpd.Request) {
	s.setCORS(w)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(204)
}

func (s *Service) setCORS(w *httpd.ResponseWriter) {
	if s.corsOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
	}
}

func (s *Service) respond(w *httpd.ResponseWriter, status int, v interface{}) {
	s.setCORS(w)

	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(500)
		w.WriteString(httpd.StatusText(500) + "\n")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func (s *Service) respondError(w *httpd.ResponseWriter, status int, msg string) {
	s.respond(w, status, map[string]string{"error": msg})
}

// respondStoreError translates storage errors into the conventional codes.
func (s *Service) respondStoreError(w *httpd.ResponseWriter, err error) {
	switch {
	case errors.Is(err, filedb.ErrKeyDoesNotExist):
		s.respondError(w, 404, "not found")
	case errors.Is(err, ErrValidation):
		s.respondError(w, 400, err.Error())
	default:
		s.respondError(w, 500, "internal error")
	}
}

func decodeJSON(r *httpd.Request, dest interface{}) error {
	if len(r.Body) == 0 {
		return errors.Wrap(ErrValidation, "request body is empty")
	}

	if err := json.Unmarshal(r.Body, dest); err != nil {
		return errors.Wrap(ErrValidation, "request body is not valid json")
	}

	return nil
}

func idFromKey(key, prefix string) (int, error) {
	n, err := strconv.Atoi(key[len(prefix):])
	if err != nil {
		return 0, errors.Wrapf(err, "key %s has no numeric id", key)
	}
	return n, nil
}

func pathID(r *httpd.Request) (int, error) {
	id, err := strconv.Atoi(r.Param("id"))
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(ErrValidation, "id %q must be a positive integer", r.Param("id"))
	}
	return id, nil
}
