package linkformat

import (
	"fmt"
	"strconv"
	"strings"
)

// ContentType is the media type for link-format documents.
const ContentType = "application/link-format"

// Well-known attribute names used by the directory.
const (
	AttrEndpoint     = "ep"
	AttrDomain       = "d"
	AttrEndpointType = "et"
	AttrLifetime     = "lt"
	AttrContext      = "con"
	AttrResourceType = "rt"
)

// Link is one parsed link-format entry: a target path plus its attributes.
type Link struct {
	// Path is the target split into non-empty segments ("/s/temp" → ["s","temp"]).
	Path []string
	// Attrs holds the entry's attributes.
	Attrs *Attributes
}

// Target returns the link's path rendered with a leading slash.
func (l Link) Target() string {
	return "/" + strings.Join(l.Path, "/")
}

// Parse decodes a link-format document into its entries.
//
// Malformed entries do not fail the document: each bad entry is dropped and
// reported in the returned diagnostics slice, while well-formed entries are
// still returned. An empty document yields no links and no diagnostics.
func Parse(doc string) ([]Link, []error) {
	var (
		links []Link
		diags []error
	)
	for _, entry := range splitQuoted(doc, ',') {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		link, err := parseEntry(entry)
		if err != nil {
			diags = append(diags, fmt.Errorf("link entry %q: %w", entry, err))
			continue
		}
		links = append(links, link)
	}
	return links, diags
}

func parseEntry(entry string) (Link, error) {
	if !strings.HasPrefix(entry, "<") {
		return Link{}, fmt.Errorf("missing <target>")
	}
	end := strings.IndexByte(entry, '>')
	if end < 0 {
		return Link{}, fmt.Errorf("unterminated <target>")
	}
	segments, err := splitTarget(entry[1:end])
	if err != nil {
		return Link{}, err
	}

	attrs := NewAttributes()
	for _, param := range splitQuoted(entry[end+1:], ';') {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}
		key, rawValue, hasValue := strings.Cut(param, "=")
		if key == "" {
			return Link{}, fmt.Errorf("empty attribute name")
		}
		if !hasValue {
			attrs.AddFlag(key)
			continue
		}
		if strings.HasPrefix(rawValue, `"`) {
			if len(rawValue) < 2 || !strings.HasSuffix(rawValue, `"`) {
				return Link{}, fmt.Errorf("unterminated quoted value for %q", key)
			}
			// Quoted values may carry several space- or comma-separated
			// values under the same key, e.g. rt="a b".
			for _, v := range strings.FieldsFunc(rawValue[1:len(rawValue)-1], func(r rune) bool {
				return r == ' ' || r == ','
			}) {
				attrs.Add(key, v)
			}
			if !attrs.Has(key) {
				attrs.AddFlag(key)
			}
			continue
		}
		attrs.Add(key, rawValue)
	}

	return Link{Path: segments, Attrs: attrs}, nil
}

// splitTarget reduces a link target to its path segments. Absolute-URI
// targets keep only the path component.
func splitTarget(target string) ([]string, error) {
	if i := strings.Index(target, "://"); i >= 0 {
		rest := target[i+3:]
		j := strings.IndexByte(rest, '/')
		if j < 0 {
			return nil, fmt.Errorf("target %q has no path", target)
		}
		target = rest[j:]
	}
	var segments []string
	for _, seg := range strings.Split(target, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty target path")
	}
	return segments, nil
}

// splitQuoted splits s on sep, ignoring separators inside double quotes.
func splitQuoted(s string, sep byte) []string {
	var (
		parts    []string
		start    int
		inQuotes bool
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case sep:
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// FormatEntry renders one link-format entry for the given target and
// attributes, e.g. `</s/temp>;rt="temperature";ep="node1"`.
func FormatEntry(target string, attrs *Attributes) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(target)
	b.WriteByte('>')
	writeAttributes(&b, attrs)
	return b.String()
}

func writeAttributes(b *strings.Builder, attrs *Attributes) {
	for _, key := range attrs.Keys() {
		values := attrs.Values(key)
		b.WriteByte(';')
		b.WriteString(key)
		switch {
		case len(values) == 0:
			// value-less attribute
		case len(values) == 1 && isNumber(values[0]):
			b.WriteByte('=')
			b.WriteString(values[0])
		default:
			b.WriteString(`="`)
			b.WriteString(strings.Join(values, " "))
			b.WriteByte('"')
		}
	}
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
