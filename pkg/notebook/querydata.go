package notebook

import (
	"net/url"
	"sort"
	"strings"
)

// queryDataPrefix marks a query-data blob as form-urlencoded fields we
// understand, as opposed to an opaque provider-specific query string.
const queryDataPrefix = "application/x-www-form-urlencoded,"

type queryField struct {
	key   string
	value string
}

// HasQueryData reports whether queryData carries any fields we understand.
func HasQueryData(queryData string) bool {
	data, ok := strings.CutPrefix(queryData, queryDataPrefix)
	return ok && data != ""
}

// GetQueryField returns the value of fieldName in queryData, or "" if the
// blob has no recognized prefix or the field is absent.
func GetQueryField(queryData, fieldName string) string {
	for _, f := range parseQueryData(queryData) {
		if f.key == fieldName {
			return f.value
		}
	}
	return ""
}

// SetQueryField returns queryData with fieldName set to value, replacing any
// existing value. Keys are kept in alphabetical order so that two peers
// setting different fields concurrently converge on the same resulting blob,
// regardless of the order the sets were applied in.
func SetQueryField(queryData, fieldName, value string) string {
	fields := parseQueryData(queryData)
	out := make([]queryField, 0, len(fields)+1)
	inserted := false
	for _, f := range fields {
		if f.key == fieldName {
			continue
		}
		if !inserted && f.key >= fieldName {
			out = append(out, queryField{key: fieldName, value: value})
			inserted = true
		}
		out = append(out, f)
	}
	if !inserted {
		out = append(out, queryField{key: fieldName, value: value})
	}
	return encodeQueryData(out)
}

// UnsetQueryField returns queryData with fieldName removed.
func UnsetQueryField(queryData, fieldName string) string {
	fields := parseQueryData(queryData)
	out := make([]queryField, 0, len(fields))
	for _, f := range fields {
		if f.key != fieldName {
			out = append(out, f)
		}
	}
	return encodeQueryData(out)
}

// parseQueryData returns the ordered fields of queryData, or nil if the blob
// carries no recognized prefix.
func parseQueryData(queryData string) []queryField {
	data, ok := strings.CutPrefix(queryData, queryDataPrefix)
	if !ok || data == "" {
		return nil
	}
	pairs := strings.Split(data, "&")
	fields := make([]queryField, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			k = key
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			v = value
		}
		fields = append(fields, queryField{key: k, value: v})
	}
	return fields
}

// encodeQueryData re-serializes fields, sorted alphabetically by key.
func encodeQueryData(fields []queryField) string {
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].key < fields[j].key })
	var b strings.Builder
	b.WriteString(queryDataPrefix)
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.value))
	}
	return b.String()
}
