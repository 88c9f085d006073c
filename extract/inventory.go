package extract

import (
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// inventoryLimit bounds each Inventory list.
const inventoryLimit = 15

// Inventory lists selector building blocks present on a page.
type Inventory struct {
	Tags    []string `json:"tags"`
	IDs     []string `json:"ids"`
	Classes []string `json:"classes"`
}

// Inventory collects the distinct tag names, ids and classes of the page,
// sorted and truncated to the first 15 of each.
func (d *Document) Inventory() Inventory {
	tags := map[string]struct{}{}
	ids := map[string]struct{}{}
	classes := map[string]struct{}{}
	d.doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		tags[goquery.NodeName(s)] = struct{}{}
		if id, ok := s.Attr("id"); ok && strings.TrimSpace(id) != "" {
			ids[strings.TrimSpace(id)] = struct{}{}
		}
		if cls, ok := s.Attr("class"); ok {
			for _, c := range strings.Fields(cls) {
				classes[c] = struct{}{}
			}
		}
	})
	return Inventory{
		Tags:    firstSorted(tags),
		IDs:     firstSorted(ids),
		Classes: firstSorted(classes),
	}
}

func firstSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	if len(out) > inventoryLimit {
		out = out[:inventoryLimit]
	}
	return out
}
