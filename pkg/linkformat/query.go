package linkformat

import (
	"net/url"
	"strings"
)

// QueryTerm is one key[=value] filter term. A term without "=" (HasValue
// false) matches any entry that carries the attribute at all; that is
// distinct from an explicit empty value ("key=").
type QueryTerm struct {
	Key      string
	Value    string
	HasValue bool
}

// Query is an ordered sequence of filter terms, as found in an RFC 6690
// query string. Keys may repeat.
type Query []QueryTerm

// ParseQuery decodes a raw query string ("rt=light&ep=node*") into terms,
// preserving order and duplicates. Percent-encoding is undone best-effort;
// terms that fail to decode are kept verbatim.
func ParseQuery(raw string) Query {
	var q Query
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		q = append(q, QueryTerm{Key: key, Value: value, HasValue: hasValue})
	}
	return q
}

// Match reports whether attrs satisfies the query: for every distinct key
// in the query at least one of its terms must hold. A term value ending in
// "*" matches by prefix, otherwise by exact equality. An empty query
// matches everything.
func (q Query) Match(attrs *Attributes) bool {
	if len(q) == 0 {
		return true
	}
	satisfied := make(map[string]bool, len(q))
	for _, term := range q {
		if _, seen := satisfied[term.Key]; !seen {
			satisfied[term.Key] = false
		}
		if satisfied[term.Key] {
			continue
		}
		if term.matches(attrs) {
			satisfied[term.Key] = true
		}
	}
	for _, ok := range satisfied {
		if !ok {
			return false
		}
	}
	return true
}

func (t QueryTerm) matches(attrs *Attributes) bool {
	if !attrs.Has(t.Key) {
		return false
	}
	if !t.HasValue {
		return true
	}
	if prefix, wildcard := strings.CutSuffix(t.Value, "*"); wildcard {
		for _, v := range attrs.Values(t.Key) {
			if strings.HasPrefix(v, prefix) {
				return true
			}
		}
		return false
	}
	for _, v := range attrs.Values(t.Key) {
		if v == t.Value {
			return true
		}
	}
	return false
}

// Get returns the value of the first term for key.
func (q Query) Get(key string) (value string, ok bool) {
	for _, term := range q {
		if term.Key == key {
			return term.Value, true
		}
	}
	return "", false
}

// Without returns a copy of q with all terms for key removed.
func (q Query) Without(key string) Query {
	var out Query
	for _, term := range q {
		if term.Key != key {
			out = append(out, term)
		}
	}
	return out
}
