package dom

import (
	"fmt"
	"strings"
)

// Selector derives a reproducible locator for an element from current DOM
// state. Deterministic for a fixed tree, best-effort otherwise: callers
// must treat the result as a hint, not a durable key.
//
// Priority: #id when the element carries a non-empty id; else
// tag.class1.class2… with all classes in document order; else a
// " > "-joined tag path up to (excluding) the root element, adding
// :nth-of-type(k) only where same-tag siblings make it ambiguous.
func Selector(el *Element) string {
	if el == nil {
		return ""
	}

	if id := el.ID(); id != "" {
		return "#" + id
	}

	if classes := el.Classes(); len(classes) > 0 {
		return el.Tag() + "." + strings.Join(classes, ".")
	}

	var parts []string
	for cur := el; cur != nil && cur.Tag() != "html"; cur = cur.Parent() {
		parts = append(parts, pathComponent(cur))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

// pathComponent emits "tag" or "tag:nth-of-type(k)" depending on whether
// the element has same-tag siblings under its parent.
func pathComponent(el *Element) string {
	parent := el.Parent()
	if parent == nil {
		return el.Tag()
	}

	sameTag := 0
	position := 0
	for _, sib := range parent.Children() {
		if sib.Tag() != el.Tag() {
			continue
		}
		sameTag++
		if sib.Same(el) {
			position = sameTag
		}
	}
	if sameTag <= 1 {
		return el.Tag()
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", el.Tag(), position)
}
