// Package linkformat implements the CoRE Link Format (RFC 6690) subset used
// by the resource directory: parsing link documents into path+attribute
// entries, serializing resource entries back to text, and matching entries
// against attribute filter queries.
//
// Example document:
//
//	</sensors/temp>;rt="temperature-c";if="sensor",</sensors/light>;rt=light
package linkformat

// Attributes is an ordered string multimap for link attributes.
// Keys iterate in first-insertion order; values for a key keep append order.
// A key may be present with no values (a value-less attribute such as "obs").
type Attributes struct {
	keys   []string
	values map[string][]string
}

// NewAttributes returns an empty attribute set.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string][]string)}
}

func (a *Attributes) ensureKey(key string) {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
		a.values[key] = nil
	}
}

// Set assigns key to exactly one value, discarding any previous values.
func (a *Attributes) Set(key, value string) {
	a.ensureKey(key)
	a.values[key] = []string{value}
}

// Add appends a value under key, preserving duplicates.
func (a *Attributes) Add(key, value string) {
	a.ensureKey(key)
	a.values[key] = append(a.values[key], value)
}

// AddFlag records key with no value (e.g. the "obs" attribute).
func (a *Attributes) AddFlag(key string) {
	a.ensureKey(key)
}

// Clear removes key and all its values.
func (a *Attributes) Clear(key string) {
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// ClearAll removes every key.
func (a *Attributes) ClearAll() {
	a.keys = a.keys[:0]
	for k := range a.values {
		delete(a.values, k)
	}
}

// Get returns the first value for key. ok is true when the key is present,
// even if it carries no value.
func (a *Attributes) Get(key string) (value string, ok bool) {
	vs, present := a.values[key]
	if !present {
		return "", false
	}
	if len(vs) == 0 {
		return "", true
	}
	return vs[0], true
}

// Values returns the values recorded under key, in append order.
func (a *Attributes) Values(key string) []string {
	return a.values[key]
}

// Has reports whether key is present.
func (a *Attributes) Has(key string) bool {
	_, ok := a.values[key]
	return ok
}

// Keys returns the attribute keys in first-insertion order.
func (a *Attributes) Keys() []string {
	return a.keys
}

// Len returns the number of distinct keys.
func (a *Attributes) Len() int {
	return len(a.keys)
}

// CopyFrom replaces the receiver's content with a copy of src.
func (a *Attributes) CopyFrom(src *Attributes) {
	a.ClearAll()
	for _, k := range src.keys {
		a.ensureKey(k)
		a.values[k] = append([]string(nil), src.values[k]...)
	}
}
