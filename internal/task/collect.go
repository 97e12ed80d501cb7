package task

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/illustrator-bridge/core/internal/errors"
)

// validationError pairs a TaskCode with a message, matching ReportError's
// shape so validate-stage failures can be reported directly.
type validationError struct {
	code    errors.TaskCode
	message string
}

func (e *validationError) Error() string { return fmt.Sprintf("%s: %s", e.code, e.message) }

func invalidTargets(format string, args ...any) error {
	return &validationError{code: errors.V003InvalidTargets, message: fmt.Sprintf(format, args...)}
}

// CollectedItem pairs a resolved host item with the stable reference
// reported back to the caller.
type CollectedItem struct {
	Item Item
	Ref  ItemRef
}

// Collect resolves selector against doc into an ordered, deduplicated list
// of items. It is a pure function of doc and selector: repeated calls on an
// unchanged document yield bit-identical output (invariant 4), and the
// result always tie-breaks by (layerPath, indexPath) (invariant 4, S4).
func Collect(doc *Document, selector TargetSelector) ([]CollectedItem, error) {
	items, err := resolveVariant(doc, selector)
	if err != nil {
		return nil, err
	}

	items = dedupe(items)
	items = applyExclude(items, selector.Exclude)
	sortItems(items, selector.OrderBy)

	out := make([]CollectedItem, len(items))
	for i, it := range items {
		out[i] = CollectedItem{Item: it, Ref: it.ref()}
	}
	return out, nil
}

func resolveVariant(doc *Document, selector TargetSelector) ([]Item, error) {
	switch selector.Kind {
	case SelectorSelection:
		return resolveSelection(doc), nil
	case SelectorLayer:
		if selector.Layer == nil || selector.Layer.Name == "" {
			return nil, invalidTargets("layer selector requires a non-empty name")
		}
		return resolveLayer(doc, selector.Layer.Name, selector.Layer.Recursive), nil
	case SelectorAll:
		recursive := selector.All != nil && selector.All.Recursive
		return resolveAll(doc, recursive), nil
	case SelectorQuery:
		return resolveQuery(doc, selector.Query)
	case SelectorCompound:
		return resolveCompound(doc, selector.Compound)
	case "":
		return nil, invalidTargets("targets selector is required")
	default:
		return nil, &validationError{code: errors.V005UnknownTargetType, message: fmt.Sprintf("unknown target selector kind %q", selector.Kind)}
	}
}

func resolveSelection(doc *Document) []Item {
	byKey := make(map[string]Item, len(doc.Items))
	for _, it := range doc.Items {
		byKey[it.locator().Key()] = it
	}
	var out []Item
	for _, loc := range doc.Selection {
		if it, ok := byKey[loc.Key()]; ok {
			out = append(out, it)
		}
	}
	return out
}

func resolveLayer(doc *Document, name string, recursive bool) []Item {
	var out []Item
	for _, it := range doc.Items {
		if layerScope(it.LayerPath, name, recursive) {
			out = append(out, it)
		}
	}
	return out
}

func resolveAll(doc *Document, recursive bool) []Item {
	var out []Item
	for _, it := range doc.Items {
		if recursive || topLevel(it.LayerPath) {
			out = append(out, it)
		}
	}
	return out
}

func resolveQuery(doc *Document, q *QuerySelector) ([]Item, error) {
	if q == nil || (q.ItemType == "" && q.Pattern == "" && q.Layer == "") {
		return nil, &validationError{code: errors.V003InvalidTargets, message: "query selector requires at least one of itemType, pattern, or layer"}
	}

	var out []Item
	for _, it := range doc.Items {
		if q.Layer != "" && !layerScope(it.LayerPath, q.Layer, q.Recursive) {
			continue
		}
		if q.ItemType != "" && it.ItemType != q.ItemType {
			continue
		}
		if q.Pattern != "" {
			matched, err := filepath.Match(q.Pattern, it.Name)
			if err != nil || !matched {
				continue
			}
		}
		out = append(out, it)
	}
	return out, nil
}

func resolveCompound(doc *Document, c *CompoundSelector) ([]Item, error) {
	if c == nil || len(c.AnyOf) == 0 {
		return nil, &validationError{code: errors.V003InvalidTargets, message: "compound selector requires a non-empty anyOf"}
	}

	seen := make(map[string]bool)
	var union []Item
	for _, child := range c.AnyOf {
		if child.Kind == SelectorCompound {
			return nil, invalidTargets("compound selector's anyOf must not nest another compound")
		}
		items, err := resolveVariant(doc, child)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			key := it.locator().Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			union = append(union, it)
		}
	}
	return applyExclude(union, c.Exclude), nil
}

// dedupe removes items sharing the same locator, keeping first occurrence.
func dedupe(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		key := it.locator().Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

func applyExclude(items []Item, f *ExcludeFilter) []Item {
	if f == nil {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		if f.Locked && it.Locked {
			continue
		}
		if f.Hidden && it.Hidden {
			continue
		}
		if f.Guides && it.Guide {
			continue
		}
		if f.Clipped && it.Clipped {
			continue
		}
		out = append(out, it)
	}
	return out
}

// sortItems orders items by the requested key, always tie-breaking by
// (layerPath, indexPath) lexicographically so ordering is deterministic
// even among items sharing a primary key.
func sortItems(items []Item, orderBy OrderBy) {
	if orderBy == "" {
		orderBy = OrderZOrder
	}

	// zOrder is the document's own stacking order, i.e. the order items
	// were encountered in the snapshot. Capture it before sorting mutates
	// the slice so zOrder/zOrderReverse have something stable to key on.
	origIndex := make(map[string]int, len(items))
	for i, it := range items {
		origIndex[it.locator().Key()] = i
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		ai, bi := origIndex[a.locator().Key()], origIndex[b.locator().Key()]
		switch orderBy {
		case OrderZOrderReverse:
			if ai != bi {
				return ai > bi
			}
		case OrderReading:
			if a.PositionY != b.PositionY {
				return a.PositionY < b.PositionY
			}
			if a.PositionX != b.PositionX {
				return a.PositionX < b.PositionX
			}
		case OrderColumn:
			if a.PositionX != b.PositionX {
				return a.PositionX < b.PositionX
			}
			if a.PositionY != b.PositionY {
				return a.PositionY < b.PositionY
			}
		case OrderName:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		case OrderPositionX:
			if a.PositionX != b.PositionX {
				return a.PositionX < b.PositionX
			}
		case OrderPositionY:
			if a.PositionY != b.PositionY {
				return a.PositionY < b.PositionY
			}
		case OrderArea:
			if a.Area != b.Area {
				return a.Area < b.Area
			}
		default: // OrderZOrder
			if ai != bi {
				return ai < bi
			}
		}
		return a.locator().Key() < b.locator().Key()
	})
}
