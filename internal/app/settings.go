package app

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

type settingsField struct {
	key   string
	value []byte
}

// objectFields returns the members of a JSON object in source order. A
// repeated key keeps its first position and its last value. Anything that is
// not an object yields no fields.
func objectFields(raw []byte) []settingsField {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return nil
	}
	var fields []settingsField
	index := map[string]int{}
	parsed.ForEach(func(key, value gjson.Result) bool {
		field := settingsField{key: key.String(), value: []byte(value.Raw)}
		if i, ok := index[field.key]; ok {
			fields[i] = field
			return true
		}
		index[field.key] = len(fields)
		fields = append(fields, field)
		return true
	})
	return fields
}

// mergeSettings layers incoming settings over the stored ones. Existing keys
// keep their position and take the new value; new keys are appended in input
// order. With replace the incoming object is used as is.
func mergeSettings(existing, incoming []byte, replace bool) ([]byte, error) {
	next := objectFields(incoming)
	if replace {
		return encodeFields(next)
	}

	merged := objectFields(existing)
	index := make(map[string]int, len(merged))
	for i, field := range merged {
		index[field.key] = i
	}
	for _, field := range next {
		if i, ok := index[field.key]; ok {
			merged[i].value = field.value
			continue
		}
		index[field.key] = len(merged)
		merged = append(merged, field)
	}
	return encodeFields(merged)
}

func encodeFields(fields []settingsField) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, field.key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := json.Compact(&buf, field.value); err != nil {
			return nil, fmt.Errorf("settings value %q: %w", field.key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// jsonObjectOrEmpty returns raw when it holds a JSON object and {} otherwise.
func jsonObjectOrEmpty(raw string) json.RawMessage {
	if raw != "" && gjson.Valid(raw) && gjson.Parse(raw).IsObject() {
		return json.RawMessage(raw)
	}
	return json.RawMessage("{}")
}
