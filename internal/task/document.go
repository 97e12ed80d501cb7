package task

import (
	"strconv"
	"strings"
)

// Locator is the volatile positional identity of an item: which layer it
// lives in and its index path within that layer's stacking order.
type Locator struct {
	LayerPath string
	IndexPath []int
}

// Key renders the locator as a comparable, sortable string, used both for
// deduplication and for the (layerPath, indexPath) tie-break rule.
func (l Locator) Key() string {
	var b strings.Builder
	b.WriteString(l.LayerPath)
	for _, i := range l.IndexPath {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}

// Item is one host document item, carrying the properties the collect
// stage's selectors, filters, and ordering keys need.
type Item struct {
	LayerPath string
	IndexPath []int
	ItemType  string
	Name      string
	PositionX float64
	PositionY float64
	Area      float64
	Locked    bool
	Hidden    bool
	Guide     bool
	Clipped   bool
	ItemID    string
	IDSource  IDSource
	Tags      map[string]string
}

func (it Item) locator() Locator {
	return Locator{LayerPath: it.LayerPath, IndexPath: it.IndexPath}
}

func (it Item) ref() ItemRef {
	return ItemRef{
		LayerPath: it.LayerPath,
		IndexPath: append([]int(nil), it.IndexPath...),
		ItemID:    it.ItemID,
		IDSource:  it.IDSource,
		Tags:      it.Tags,
		ItemType:  it.ItemType,
		Name:      it.Name,
	}
}

// Document is an in-memory snapshot of a host document, sufficient to
// exercise Collect's target-resolution logic without a live Illustrator
// host. A production caller builds one from the script host's reply to a
// target-enumeration script.
type Document struct {
	Items []Item
	// Selection holds the locators of the currently selected items, for
	// the "selection" selector variant.
	Selection []Locator
}

// layerScope reports whether item's layer path falls within the named
// scope: an exact match, or (when recursive) any path nested under it.
func layerScope(itemLayerPath, scope string, recursive bool) bool {
	if itemLayerPath == scope {
		return true
	}
	return recursive && strings.HasPrefix(itemLayerPath, scope+"/")
}

// topLevel reports whether layerPath names a root layer (no "/").
func topLevel(layerPath string) bool {
	return !strings.Contains(layerPath, "/")
}
