package filedb

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	ErrJSONCouldNotBeUnmarshalled = errors.New("json contents could not be unmarshalled")
	ErrJSONPathDoesNotExist       = errors.New("json path does not exist")
)

// Document is a detached copy of a stored entry. Mutating it, or the byte
// slice it returns, never touches the database.
type Document struct {
	key    string
	value  []byte
	labels map[string]string
}

func newDocument(ent *entry) *Document {
	cp := ent.clone()
	return &Document{
		key:    cp.key.String(),
		value:  cp.value,
		labels: cp.labels,
	}
}

func (d *Document) Key() string {
	return d.key
}

func (d *Document) Value() []byte {
	return d.value
}

func (d *Document) RawString() string {
	return string(d.value)
}

func (d *Document) Labels() map[string]string {
	if d.labels == nil {
		return map[string]string{}
	}
	return d.labels
}

func (d *Document) Label(name string) string {
	return d.labels[name]
}

func (d *Document) Unmarshal(dest interface{}) error {
	if err := json.Unmarshal(d.value, dest); err != nil {
		return errors.Wrap(ErrJSONCouldNotBeUnmarshalled, err.Error())
	}

	return nil
}

func (d *Document) String(path string) (string, error) {
	raw := gjson.GetBytes(d.value, path)
	if !raw.Exists() {
		return "", errors.Wrapf(ErrJSONPathDoesNotExist, "path %s", path)
	}
	return raw.String(), nil
}

func (d *Document) StringOrDefault(path, def string) string {
	v, err := d.String(path)
	if err != nil {
		return def
	}
	return v
}

func (d *Document) Int(path string) (int, error) {
	raw := gjson.GetBytes(d.value, path)
	if !raw.Exists() {
		return 0, errors.Wrapf(ErrJSONPathDoesNotExist, "path %s", path)
	}
	return int(raw.Int()), nil
}

func (d *Document) IntOrDefault(path string, def int) int {
	v, err := d.Int(path)
	if err != nil {
		return def
	}
	return v
}

func (d *Document) Float(path string) (float64, error) {
	raw := gjson.GetBytes(d.value, path)
	if !raw.Exists() {
		return 0, errors.Wrapf(ErrJSONPathDoesNotExist, "path %s", path)
	}
	return raw.Float(), nil
}

func (d *Document) FloatOrDefault(path string, def float64) float64 {
	v, err := d.Float(path)
	if err != nil {
		return def
	}
	return v
}

func (d *Document) Bool(path string) (bool, error) {
	raw := gjson.GetBytes(d.value, path)
	if !raw.Exists() {
		return false, errors.Wrapf(ErrJSONPathDoesNotExist, "path %s", path)
	}
	return raw.Bool(), nil
}

func (d *Document) BoolOrDefault(path string, def bool) bool {
	v, err := d.Bool(path)
	if err != nil {
		return def
	}
	return v
}
