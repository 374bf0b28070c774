package element

import "slices"

// ReplaceElement substitutes the first node whose id equals targetID,
// searching depth-first in pre-order: a node is checked before its children,
// and its children before its later siblings. Only that one node is replaced,
// even when the id occurs again elsewhere in the tree.
//
// The input is never modified. Nodes on the path from the root to the match
// are copied; everything else is shared with doc. When nothing matches, doc
// is returned as-is with found set to false.
func ReplaceElement(doc Document, targetID string, replacement Element) (Document, bool) {
	elements, found := replaceIn(doc.Elements, targetID, replacement)
	if !found {
		return doc, false
	}
	return Document{Elements: elements}, true
}

func replaceIn(elements []Element, targetID string, replacement Element) ([]Element, bool) {
	for i, el := range elements {
		if el.matches(targetID) {
			out := slices.Clone(elements)
			out[i] = replacement
			return out, true
		}
		if len(el.Elements) == 0 {
			continue
		}
		children, found := replaceIn(el.Elements, targetID, replacement)
		if !found {
			continue
		}
		out := slices.Clone(elements)
		out[i] = el.withElements(children)
		return out, true
	}
	return elements, false
}

func (e Element) matches(id string) bool {
	if e.opaque {
		return false
	}
	if e.slots != nil && !e.idString {
		return false
	}
	return e.ID == id
}

func (e Element) withElements(children []Element) Element {
	e.Elements = children
	e.raw = nil
	return e
}
