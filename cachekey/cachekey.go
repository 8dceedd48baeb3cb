// Package cachekey derives stable, human-readable cache keys from a resource
// name and a set of query parameters.
//
//	cachekey.Build("companies", map[string]any{"status": "all", "search": "acme"})
//	// "companies:search=acme&status=all"
package cachekey

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Build returns resource followed by ":" and the params serialized as
// key=value pairs in lexicographic key order. Parameters whose value is nil
// (including typed nil pointers) are dropped, so an unset optional filter
// yields the same key as an absent one. Keys and values are query-escaped.
func Build(resource string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if isNil(v) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(resource)
	b.WriteByte(':')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(formatValue(params[k])))
	}
	return b.String()
}

// Params is a convenience builder for the map passed to [Build].
type Params map[string]any

// Set stores v under k and returns p for chaining.
func (p Params) Set(k string, v any) Params {
	p[k] = v
	return p
}

// SetNonZero stores v under k only when v is not its type's zero value, which
// matches how optional UI filters ("", 0, false) are omitted from requests.
func (p Params) SetNonZero(k string, v any) Params {
	if isNil(v) || reflect.ValueOf(v).IsZero() {
		return p
	}
	p[k] = v
	return p
}

// Key is shorthand for Build(resource, p).
func (p Params) Key(resource string) string {
	return Build(resource, p)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	}

	// Nested values: encoding/json sorts map keys, which is all determinism
	// requires here.
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return fmt.Sprintf("%v", rv.Interface())
	}
	return string(data)
}
