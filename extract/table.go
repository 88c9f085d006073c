package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultTableSelector picks wiki-style data tables.
const DefaultTableSelector = "table.wikitable"

// HTML caps on span attributes.
const (
	maxColspan = 1000
	maxRowspan = 65534
)

// Table flattens the largest table matching selector into a rectangular
// grid. Cells spanning several rows or columns repeat their text in every
// position they cover and short rows are padded with "". A page without a
// matching table yields nil.
func (d *Document) Table(selector string) ([][]string, error) {
	if selector == "" {
		selector = DefaultTableSelector
	}
	if err := ValidateSelector(selector); err != nil {
		return nil, err
	}
	var (
		best     *goquery.Selection
		bestRows = -1
	)
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if n := len(ownRows(s)); n > bestRows {
			best, bestRows = s, n
		}
	})
	if best == nil {
		return nil, nil
	}
	return flattenTable(best), nil
}

type activeSpan struct {
	value     string
	remaining int
}

func flattenTable(t *goquery.Selection) [][]string {
	var (
		rows   [][]string
		active = make(map[int]*activeSpan)
		width  int
	)
	for _, tr := range ownRows(t) {
		cells := tr.ChildrenFiltered("td, th")
		var row []string
		col, next := 0, 0
		for {
			if sp, ok := active[col]; ok {
				row = append(row, sp.value)
				if sp.remaining--; sp.remaining == 0 {
					delete(active, col)
				}
				col++
				continue
			}
			if next >= cells.Length() {
				if !spansFrom(active, col) {
					break
				}
				row = append(row, "")
				col++
				continue
			}
			cell := cells.Eq(next)
			next++
			value := cellText(cell)
			rs := spanAttr(cell, "rowspan", maxRowspan)
			cs := spanAttr(cell, "colspan", maxColspan)
			for range cs {
				if rs > 1 {
					active[col] = &activeSpan{value: value, remaining: rs - 1}
				}
				row = append(row, value)
				col++
			}
		}
		width = max(width, len(row))
		rows = append(rows, row)
	}
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
	return rows
}

// ownRows returns the rows of t in document order, leaving out the rows of
// tables nested inside its cells.
func ownRows(t *goquery.Selection) []*goquery.Selection {
	var rows []*goquery.Selection
	t.Children().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "tr":
			rows = append(rows, c)
		case "thead", "tbody", "tfoot":
			c.ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
				rows = append(rows, tr)
			})
		}
	})
	return rows
}

// spansFrom reports whether any span is still active at col or beyond.
func spansFrom(active map[int]*activeSpan, col int) bool {
	for c := range active {
		if c >= col {
			return true
		}
	}
	return false
}

// spanAttr parses a rowspan or colspan. Missing, malformed and
// non-positive values count as 1.
func spanAttr(s *goquery.Selection, name string, ceiling int) int {
	v, ok := s.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, ceiling)
}

// cellText joins the trimmed text nodes of a cell with single spaces.
// Nested tables are left out; they are tables of their own.
func cellText(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := CleanText(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "table") {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
