package pipeline

import "github.com/harrowgate/epv/internal/domain"

// Flatten projects a final element vector into table rows: each top-level
// element becomes one row. A Pair(L, R) contributes the flattening of L's
// first element followed by R's first element; any further elements on
// either side are discarded. All other variants serialize as a single-cell
// row.
func Flatten(elements []domain.Element) [][]domain.SerializableElement {
	rows := make([][]domain.SerializableElement, len(elements))
	for i, el := range elements {
		var row []domain.SerializableElement
		flattenInto(el, &row)
		rows[i] = row
	}
	return rows
}

func flattenInto(el domain.Element, row *[]domain.SerializableElement) {
	if el.Kind != domain.ElementPair {
		*row = append(*row, el.Serialize())
		return
	}
	if len(el.Left) > 0 {
		flattenInto(el.Left[0], row)
	}
	if len(el.Right) > 0 {
		flattenInto(el.Right[0], row)
	}
}
