package filedb

import "sort"

type entry struct {
	key    PK
	value  []byte
	labels map[string]string
}

func newEntry(key string, value []byte) *entry {
	return &entry{key: newPK(key), value: value}
}

func newEntryWithLabels(key string, value []byte, labels map[string]string) *entry {
	return &entry{key: newPK(key), value: value, labels: labels}
}

func (ent *entry) clone() *entry {
	cpEnt := entry{key: ent.key}

	if ent.value != nil {
		cpEnt.value = make([]byte, len(ent.value))
		copy(cpEnt.value, ent.value)
	}

	if ent.labels != nil {
		cpEnt.labels = make(map[string]string, len(ent.labels))
		for n, v := range ent.labels {
			cpEnt.labels[n] = v
		}
	}

	return &cpEnt
}

func (ent *entry) labelCount() int {
	return len(ent.labels)
}

func (ent *entry) sortedLabelNames() []string {
	names := make([]string, 0, len(ent.labels))
	for n := range ent.labels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (ent *entry) setLabel(name, value string) {
	if ent.labels == nil {
		ent.labels = make(map[string]string)
	}
	ent.labels[name] = value
}

// commands are the units of the append-only log. Each one knows how to
// serialize itself and how to replay itself against an engine on load.
type serializable interface {
	serialize(rs *respSerializer) error
}

type deserializable interface {
	deserialize(e *engine) error
}

func (ent *entry) serialize(rs *respSerializer) error {
	return rs.serializeSetCommand(ent)
}

func (ent *entry) deserialize(e *engine) error {
	return e.put(ent, true)
}

type deleteCmd struct {
	key PK
}

func (cmd *deleteCmd) serialize(rs *respSerializer) error {
	return rs.serializeDelCommand(cmd)
}

func (cmd *deleteCmd) deserialize(e *engine) error {
	return e.remove(cmd.key)
}

type labelCmd struct {
	key    PK
	labels map[string]string
}

func (cmd *labelCmd) serialize(rs *respSerializer) error {
	return rs.serializeLabelCommand(cmd)
}

func (cmd *labelCmd) deserialize(e *engine) error {
	ent, err := e.findByKey(cmd.key.String())
	if err != nil {
		return err
	}

	for n, v := range cmd.labels {
		e.upsertLabel(n, v, ent)
	}

	return nil
}

type unlabelCmd struct {
	key   PK
	names []string
}

func (cmd *unlabelCmd) serialize(rs *respSerializer) error {
	return rs.serializeUnlabelCommand(cmd)
}

func (cmd *unlabelCmd) deserialize(e *engine) error {
	ent, err := e.findByKey(cmd.key.String())
	if err != nil {
		return err
	}

	for _, n := range cmd.names {
		e.removeLabel(n, ent)
	}

	return nil
}
