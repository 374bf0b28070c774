// Package element models a page-builder layout as a tree of element nodes.
//
// Parsed nodes remember their source bytes and are written back verbatim
// unless a change happens below them, so fields this package does not know
// about survive a round-trip untouched.
package element

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

var (
	ErrInvalidJSON = errors.New("invalid JSON")
	ErrNotSequence = errors.New("layout is not an element sequence")
	ErrNotObject   = errors.New("element is not an object")
)

// Field is an element attribute kept as raw JSON.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Element is a single layout node. The fields of a parsed element are a
// read-only view: ReplaceElement returns modified copies instead.
type Element struct {
	ID       string
	ElType   string
	Elements []Element
	Extra    []Field

	slots  []slot
	raw    []byte
	opaque bool

	idString      bool
	elTypeString  bool
	elementsArray bool
}

// slot records where the value of one source key lives: a typed struct
// field when extra is negative, otherwise Extra[extra].
type slot struct {
	key   string
	extra int
}

// Document is the top-level ordered element sequence of a page.
type Document struct {
	Elements []Element
}

// Parse decodes stored layout text.
func Parse(raw []byte) (Document, error) {
	if !gjson.ValidBytes(raw) {
		return Document{}, ErrInvalidJSON
	}
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		return Document{}, ErrNotSequence
	}
	return Document{Elements: parseSequence(root)}, nil
}

// ParseElement decodes a single node supplied by a caller.
func ParseElement(raw []byte) (Element, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return Element{}, ErrInvalidJSON
	}
	value := gjson.ParseBytes(compact.Bytes())
	if !value.IsObject() {
		return Element{}, ErrNotObject
	}
	return parseNode(value), nil
}

func parseSequence(arr gjson.Result) []Element {
	elements := []Element{}
	arr.ForEach(func(_, value gjson.Result) bool {
		elements = append(elements, parseNode(value))
		return true
	})
	return elements
}

func parseNode(value gjson.Result) Element {
	el := Element{raw: []byte(value.Raw)}
	if !value.IsObject() {
		el.opaque = true
		return el
	}

	type entry struct {
		key   string
		value gjson.Result
	}
	var entries []entry
	value.ForEach(func(key, field gjson.Result) bool {
		entries = append(entries, entry{key: key.String(), value: field})
		return true
	})

	// A repeated key is resolved to its last well-typed occurrence. Every
	// other occurrence is carried in Extra at its own position.
	typedAt := map[string]int{}
	for i, e := range entries {
		if qualifies(e.key, e.value) {
			typedAt[e.key] = i
		}
	}

	el.slots = make([]slot, 0, len(entries))
	for i, e := range entries {
		if at, ok := typedAt[e.key]; ok && at == i {
			switch e.key {
			case "id":
				el.ID = e.value.String()
				el.idString = true
			case "elType":
				el.ElType = e.value.String()
				el.elTypeString = true
			case "elements":
				el.Elements = parseSequence(e.value)
				el.elementsArray = true
			}
			el.slots = append(el.slots, slot{key: e.key, extra: -1})
			continue
		}
		el.slots = append(el.slots, slot{key: e.key, extra: len(el.Extra)})
		el.Extra = append(el.Extra, Field{Key: e.key, Value: json.RawMessage(e.value.Raw)})
	}
	return el
}

func qualifies(key string, value gjson.Result) bool {
	switch key {
	case "id", "elType":
		return value.Type == gjson.String
	case "elements":
		return value.IsArray()
	}
	return false
}

// Bytes serializes the document. HTML characters are not escaped.
func (d Document) Bytes() []byte {
	var buf bytes.Buffer
	writeSequence(&buf, d.Elements)
	return buf.Bytes()
}

// Bytes serializes a single element.
func (e Element) Bytes() []byte {
	var buf bytes.Buffer
	e.writeTo(&buf)
	return buf.Bytes()
}

func writeSequence(buf *bytes.Buffer, elements []Element) {
	buf.WriteByte('[')
	for i, el := range elements {
		if i > 0 {
			buf.WriteByte(',')
		}
		el.writeTo(buf)
	}
	buf.WriteByte(']')
}

func (e Element) writeTo(buf *bytes.Buffer) {
	if e.raw != nil {
		buf.Write(e.raw)
		return
	}

	slots := e.slots
	if slots == nil {
		slots = e.defaultSlots()
	}

	buf.WriteByte('{')
	for i, s := range slots {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, s.key)
		buf.WriteByte(':')
		if s.extra >= 0 {
			buf.Write(e.Extra[s.extra].Value)
			continue
		}
		switch s.key {
		case "id":
			writeString(buf, e.ID)
		case "elType":
			writeString(buf, e.ElType)
		case "elements":
			writeSequence(buf, e.Elements)
		}
	}
	buf.WriteByte('}')
}

// defaultSlots lays out an element built in code: id and elType first, then
// Extra in order, then children when there are any.
func (e Element) defaultSlots() []slot {
	slots := []slot{{key: "id", extra: -1}, {key: "elType", extra: -1}}
	for i, field := range e.Extra {
		slots = append(slots, slot{key: field.Key, extra: i})
	}
	if e.Elements != nil {
		slots = append(slots, slot{key: "elements", extra: -1})
	}
	return slots
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
}
