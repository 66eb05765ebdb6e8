package filedb

// labelIndex is the secondary index: label name -> label value -> entries.
// Entries are referenced by primary key so removal stays O(1).
type labelIndex struct {
	data map[string]map[string]map[string]*entry
}

func newLabelIndex() *labelIndex {
	return &labelIndex{
		data: make(map[string]map[string]map[string]*entry),
	}
}

func (li *labelIndex) add(name, value string, ent *entry) {
	byValue, ok := li.data[name]
	if !ok {
		byValue = make(map[string]map[string]*entry)
		li.data[name] = byValue
	}

	entries, ok := byValue[value]
	if !ok {
		entries = make(map[string]*entry)
		byValue[value] = entries
	}

	entries[ent.key.String()] = ent
}

func (li *labelIndex) remove(name, value string, ent *entry) {
	byValue, ok := li.data[name]
	if !ok {
		return
	}

	entries, ok := byValue[value]
	if !ok {
		return
	}

	delete(entries, ent.key.String())

	if len(entries) == 0 {
		delete(byValue, value)
	}

	if len(byValue) == 0 {
		delete(li.data, name)
	}
}

func (li *labelIndex) removeEntry(ent *entry) {
	for n, v := range ent.labels {
		li.remove(n, v, ent)
	}
}

func (li *labelIndex) find(name, value string) []*entry {
	byValue, ok := li.data[name]
	if !ok {
		return nil
	}

	entries, ok := byValue[value]
	if !ok {
		return nil
	}

	result := make([]*entry, 0, len(entries))
	for _, ent := range entries {
		result = append(result, ent)
	}

	return result
}
