package filedb

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

var ErrTxIsReadOnly = errors.New("transaction is read only")

type Order string

const (
	AscOrder  Order = "asc"
	DescOrder Order = "desc"
)

// Tx applies writes to the in-memory state immediately, so reads inside the
// transaction observe its own writes. Every mutation records an inverse
// operation; Rollback replays them in reverse. Commit appends the staged
// commands to the log.
type Tx struct {
	e        *engine
	ctx      context.Context
	readOnly bool
	staged   []serializable
	undo     []func()
}

func (x *Tx) Get(key string) (*Document, error) {
	ent, err := x.e.findByKey(key)
	if err != nil {
		return nil, err
	}

	return newDocument(ent), nil
}

func (x *Tx) Has(key string) bool {
	_, err := x.e.findByKey(key)
	return err == nil
}

func (x *Tx) Count() int {
	return x.e.count()
}

func (x *Tx) Insert(key string, data interface{}) error {
	return x.InsertWithLabels(key, data, nil)
}

func (x *Tx) InsertWithLabels(key string, data interface{}, labels map[string]string) error {
	if x.readOnly {
		return ErrTxIsReadOnly
	}

	v, err := serializeToValue(data)
	if err != nil {
		return err
	}

	ent := newEntryWithLabels(key, v, labels)
	if err := x.e.insert(ent); err != nil {
		return err
	}

	x.staged = append(x.staged, ent)
	x.undo = append(x.undo, func() {
		_ = x.e.remove(ent.key)
	})

	return nil
}

func (x *Tx) InsertOrReplace(key string, data interface{}) error {
	return x.InsertOrReplaceWithLabels(key, data, nil)
}

func (x *Tx) InsertOrReplaceWithLabels(key string, data interface{}, labels map[string]string) error {
	if x.readOnly {
		return ErrTxIsReadOnly
	}

	v, err := serializeToValue(data)
	if err != nil {
		return err
	}

	old, _ := x.e.findByKey(key)

	ent := newEntryWithLabels(key, v, labels)
	if err := x.e.put(ent, true); err != nil {
		return err
	}

	x.staged = append(x.staged, ent)
	x.undo = append(x.undo, func() {
		if old != nil {
			_ = x.e.put(old, true)
		} else {
			_ = x.e.remove(ent.key)
		}
	})

	return nil
}

// Update replaces the value of an existing key, keeping its labels.
func (x *Tx) Update(key string, data interface{}) error {
	if x.readOnly {
		return ErrTxIsReadOnly
	}

	old, err := x.e.findByKey(key)
	if err != nil {
		return err
	}

	v, err := serializeToValue(data)
	if err != nil {
		return err
	}

	ent := newEntryWithLabels(key, v, old.clone().labels)
	if err := x.e.put(ent, true); err != nil {
		return err
	}

	x.staged = append(x.staged, ent)
	x.undo = append(x.undo, func() {
		_ = x.e.put(old, true)
	})

	return nil
}

func (x *Tx) Delete(keys ...string) error {
	if x.readOnly {
		return ErrTxIsReadOnly
	}

	for _, k := range keys {
		old, err := x.e.findByKey(k)
		if err != nil {
			return err
		}

		if err := x.e.remove(old.key); err != nil {
			return err
		}

		x.staged = append(x.staged, &deleteCmd{key: old.key})
		x.undo = append(x.undo, func() {
			_ = x.e.put(old, true)
		})
	}

	return nil
}

func (x *Tx) Label(key string, labels map[string]string) error {
	if x.readOnly {
		return ErrTxIsReadOnly
	}

	ent, err := x.e.findByKey(key)
	if err != nil {
		return err
	}

	prev := ent.clone().labels
	for n, v := range labels {
		x.e.upsertLabel(n, v, ent)
	}

	x.staged = append(x.staged, &labelCmd{key: ent.key, labels: labels})
	x.undo = append(x.undo, func() {
		for n := range labels {
			if old, ok := prev[n]; ok {
				x.e.upsertLabel(n, old, ent)
			} else {
				x.e.removeLabel(n, ent)
			}
		}
	})

	return nil
}

func (x *Tx) Unlabel(key string, names ...string) error {
	if x.readOnly {
		return ErrTxIsReadOnly
	}

	ent, err := x.e.findByKey(key)
	if err != nil {
		return err
	}

	prev := ent.clone().labels
	for _, n := range names {
		x.e.removeLabel(n, ent)
	}

	x.staged = append(x.staged, &unlabelCmd{key: ent.key, names: names})
	x.undo = append(x.undo, func() {
		for _, n := range names {
			if old, ok := prev[n]; ok {
				x.e.upsertLabel(n, old, ent)
			}
		}
	})

	return nil
}

func (x *Tx) FindAll(order Order) []*Document {
	var result []*Document
	ir := func(ent *entry) bool {
		result = append(result, newDocument(ent))
		return true
	}

	if order == DescOrder {
		x.e.scanDescend(x.ctx, ir)
	} else {
		x.e.scanAscend(x.ctx, ir)
	}

	return result
}

func (x *Tx) FindPrefix(prefix string, order Order) []*Document {
	var result []*Document
	ir := func(ent *entry) bool {
		result = append(result, newDocument(ent))
		return true
	}

	if order == DescOrder {
		x.e.scanPrefixDescend(x.ctx, prefix, ir)
	} else {
		x.e.scanPrefixAscend(x.ctx, prefix, ir)
	}

	return result
}

func (x *Tx) FindByLabel(name, value string) []*Document {
	ents := x.e.findByLabel(name, value)

	result := make([]*Document, 0, len(ents))
	for _, ent := range ents {
		result = append(result, newDocument(ent))
	}

	return result
}

func (x *Tx) commit() error {
	defer x.reset()

	if x.e.persistence != nil && len(x.staged) > 0 {
		if err := x.e.persistence.save(x.staged); err != nil {
			x.rollbackInMemory()
			return err
		}
	}

	return nil
}

func (x *Tx) rollback() error {
	x.rollbackInMemory()
	x.reset()
	return nil
}

func (x *Tx) rollbackInMemory() {
	for i := len(x.undo) - 1; i >= 0; i-- {
		x.undo[i]()
	}
}

func (x *Tx) reset() {
	x.staged = nil
	x.undo = nil
}

func serializeToValue(d interface{}) ([]byte, error) {
	switch typedValue := d.(type) {
	case []byte:
		return typedValue, nil
	case string:
		return []byte(typedValue), nil
	case json.RawMessage:
		return typedValue, nil
	}

	b, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrapf(err, "could not marshal value %+v", d)
	}

	return b, nil
}
