package domain

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
)

// ExcludedFields are runtime-only top-level fields that must never reach the
// document medium or an archive. Older documents may still carry them.
var ExcludedFields = []string{"serialNumberCache", "cameraStream"}

// StripExcluded removes ExcludedFields from a raw document in place.
func StripExcluded(raw map[string]json.RawMessage) {
	for _, k := range ExcludedFields {
		delete(raw, k)
	}
}

func withoutExcluded(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	StripExcluded(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func jsonName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	name := f.Name
	if tag, ok := f.Tag.Lookup("json"); ok {
		if tag == "-" {
			return "", false
		}
		if n, _, _ := strings.Cut(tag, ","); n != "" {
			name = n
		}
	}
	return name, true
}

// jsonFieldNames returns the JSON object keys a struct value encodes.
func jsonFieldNames(v any) map[string]struct{} {
	t := reflect.TypeOf(v)
	out := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name, ok := jsonName(t.Field(i)); ok {
			out[name] = struct{}{}
		}
	}
	return out
}

// textFieldNames returns the JSON keys of the Text fields of a struct value.
func textFieldNames(v any) []string {
	t := reflect.TypeOf(v)
	textType := reflect.TypeOf(Text(""))
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type != textType {
			continue
		}
		if name, ok := jsonName(f); ok {
			out = append(out, name)
		}
	}
	return out
}

func isNumberLiteral(b []byte) bool {
	if len(b) == 0 || (b[0] != '-' && (b[0] < '0' || b[0] > '9')) {
		return false
	}
	last := b[len(b)-1]
	return last >= '0' && last <= '9' && json.Valid(b)
}

// numericMembers reports which of keys hold a bare JSON number in the object b.
func numericMembers(b []byte, keys []string) map[string]bool {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil
	}
	var out map[string]bool
	for _, k := range keys {
		if !isNumberLiteral(bytes.TrimSpace(all[k])) {
			continue
		}
		if out == nil {
			out = make(map[string]bool)
		}
		out[k] = true
	}
	return out
}

// withNumbers rewrites the members named in numeric as bare numbers while
// their string value is still a number literal. Other values stay strings.
func withNumbers(b []byte, numeric map[string]bool) ([]byte, error) {
	if len(numeric) == 0 {
		return b, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	changed := false
	for k := range numeric {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || !isNumberLiteral([]byte(s)) {
			continue
		}
		fields[k] = json.RawMessage(s)
		changed = true
	}
	if !changed {
		return b, nil
	}
	return json.Marshal(fields)
}

// marshalWithExtras encodes v and merges extra keys that v does not define.
func marshalWithExtras(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := fields[k]; !ok {
			fields[k] = raw
		}
	}
	return json.Marshal(fields)
}

// splitExtras decodes b into dst and returns the members whose keys are not
// in known.
func splitExtras(b []byte, dst any, known map[string]struct{}) (map[string]json.RawMessage, error) {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, nil
}
