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

const taskPrefix = "task:"

const (
	minPriority = 1
	maxPriority = 5
)

type Task struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t *Task) validate() error {
	if t.Title == "" {
		return errors.Wrap(ErrValidation, "title must not be empty")
	}

	if t.Priority < minPriority || t.Priority > maxPriority {
		return errors.Wrapf(ErrValidation, "priority must be between %d and %d", minPriority, maxPriority)
	}

	return nil
}

func taskKey(id int) string {
	return fmt.Sprintf("%s%d", taskPrefix, id)
}

func taskLabels(t *Task) map[string]string {
	return map[string]string{"completed": strconv.FormatBool(t.Completed)}
}

func (s *Service) handleListTasks(w *httpd.ResponseWriter, r *httpd.Request) {
	var docs []*filedb.Document

	err := s.db.View(context.Background(), func(tx *filedb.Tx) error {
		if completed := r.Query.Get("completed"); completed != "" {
			if completed != "true" && completed != "false" {
				return errors.Wrap(ErrValidation, "completed must be true or false")
			}
			docs = tx.FindByLabel("completed", completed)
		} else {
			docs = tx.FindPrefix(taskPrefix, filedb.AscOrder)
		}
		return nil
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	tasks := make([]Task, 0, len(docs))
	for _, doc := range docs {
		var t Task
		if err := doc.Unmarshal(&t); err != nil {
			s.respondError(w, 500, "stored task is corrupt")
			return
		}
		tasks = append(tasks, t)
	}

	// the label index hands entries back in map order
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	s.respond(w, 200, tasks)
}

func (s *Service) handleCreateTask(w *httpd.ResponseWriter, r *httpd.Request) {
	var t Task
	if err := decodeJSON(r, &t); err != nil {
		s.respondStoreError(w, err)
		return
	}

	if t.Priority == 0 {
		t.Priority = minPriority
	}

	if err := t.validate(); err != nil {
		s.respondStoreError(w, err)
		return
	}

	t.ID = int(s.nextTaskID.Add(1))
	t.Completed = false
	t.CreatedAt = time.Now().UTC()

	err := s.db.Update(context.Background(), func(tx *filedb.Tx) error {
		return tx.InsertWithLabels(taskKey(t.ID), &t, taskLabels(&t))
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.respond(w, 201, t)
}

func (s *Service) handleGetTask(w *httpd.ResponseWriter, r *httpd.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	var t Task
	err = s.db.View(context.Background(), func(tx *filedb.Tx) error {
		doc, err := tx.Get(taskKey(id))
		if err != nil {
			return err
		}
		return doc.Unmarshal(&t)
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.respond(w, 200, t)
}

// handleUpdateTask merges the request body over the stored record: absent
// fields keep their values, so a body of {"completed":true} is a valid
// partial update.
func (s *Service) handleUpdateTask(w *httpd.ResponseWriter, r *httpd.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	var updated Task
	err = s.db.Update(context.Background(), func(tx *filedb.Tx) error {
		doc, err := tx.Get(taskKey(id))
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

		if err := tx.Update(taskKey(id), &updated); err != nil {
			return err
		}

		return tx.Label(taskKey(id), taskLabels(&updated))
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.respond(w, 200, updated)
}

func (s *Service) handleDeleteTask(w *httpd.ResponseWriter, r *httpd.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	err = s.db.Update(context.Background(), func(tx *filedb.Tx) error {
		return tx.Delete(taskKey(id))
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.setCORS(w)
	w.WriteHeader(204)
}
