package api

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/caiquemiranda/backend-base/internal/filedb"
	"github.com/caiquemiranda/backend-base/internal/httpd"
)

const productPrefix = "product:"

type Product struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Product) validate() error {
	if p.Name == "" {
		return errors.Wrap(ErrValidation, "name must not be empty")
	}

	if p.Price <= 0 {
		return errors.Wrap(ErrValidation, "price must be greater than zero")
	}

	if p.Stock < 0 {
		return errors.Wrap(ErrValidation, "stock must not be negative")
	}

	return nil
}

func productKey(id int) string {
	return fmt.Sprintf("%s%d", productPrefix, id)
}

func productLabels(p *Product) map[string]string {
	if p.Category == "" {
		return nil
	}
	return map[string]string{"category": p.Category}
}

func (s *Service) handleListProducts(w *httpd.ResponseWriter, r *httpd.Request) {
	var docs []*filedb.Document

	err := s.db.View(context.Background(), func(tx *filedb.Tx) error {
		if category := r.Query.Get("category"); category != "" {
			docs = tx.FindByLabel("category", category)
		} else {
			docs = tx.FindPrefix(productPrefix, filedb.AscOrder)
		}
		return nil
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	var maxPrice float64
	filterPrice := false
	if raw := r.Query.Get("max_price"); raw != "" {
		maxPrice, err = strconv.ParseFloat(raw, 64)
		if err != nil || maxPrice <= 0 {
			s.respondError(w, 400, "max_price must be a positive number")
			return
		}
		filterPrice = true
	}

	products := make([]Product, 0, len(docs))
	for _, doc := range docs {
		if filterPrice && doc.FloatOrDefault("price", 0) > maxPrice {
			continue
		}

		var p Product
		if err := doc.Unmarshal(&p); err != nil {
			s.respondError(w, 500, "stored product is corrupt")
			return
		}
		products = append(products, p)
	}

	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	s.respond(w, 200, products)
}

func (s *Service) handleCreateProduct(w *httpd.ResponseWriter, r *httpd.Request) {
	var p Product
	if err := decodeJSON(r, &p); err != nil {
		s.respondStoreError(w, err)
		return
	}

	if err := p.validate(); err != nil {
		s.respondStoreError(w, err)
		return
	}

	p.ID = int(s.nextProductID.Add(1))
	p.CreatedAt = time.Now().UTC()

	err := s.db.Update(context.Background(), func(tx *filedb.Tx) error {
		return tx.InsertWithLabels(productKey(p.ID), &p, productLabels(&p))
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.respond(w, 201, p)
}

func (s *Service) handleGetProduct(w *httpd.ResponseWriter, r *httpd.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	var p Product
	err = s.db.View(context.Background(), func(tx *filedb.Tx) error {
		doc, err := tx.Get(productKey(id))
		if err != nil {
			return err
		}
		return doc.Unmarshal(&p)
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.respond(w, 200, p)
}

func (s *Service) handleUpdateProduct(w *httpd.ResponseWriter, r *httpd.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	var updated Product
	err = s.db.Update(context.Background(), func(tx *filedb.Tx) error {
		doc, err := tx.Get(productKey(id))
		if err != nil {
			return err
		}

		if err := doc.Unmarshal(&updated); err != nil {
			return err
		}

		if err := decodeJSON(r, &updated); err != nil {
			return err
		}

		updated.ID = id
		if err := updated.validate(); err != nil {
			return err
		}

		if err := tx.Update(productKey(id), &updated); err != nil {
			return err
		}

		if labels := productLabels(&updated); labels != nil {
			return tx.Label(productKey(id), labels)
		}

		if doc.Label("category") != "" {
			return tx.Unlabel(productKey(id), "category")
		}

		return nil
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.respond(w, 200, updated)
}

func (s *Service) handleDeleteProduct(w *httpd.ResponseWriter, r *httpd.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	err = s.db.Update(context.Background(), func(tx *filedb.Tx) error {
		return tx.Delete(productKey(id))
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.setCORS(w)
	w.WriteHeader(204)
}
