package normalize

import (
	"strings"

	"github.com/roach88/gigrank/internal/model"
)

// Batch accumulates the normalized output of one file or run payload.
type Batch struct {
	Listings  []model.Listing
	Providers []model.Provider
	Catalog   []model.CatalogItem
	Dropped   int

	titles map[string]bool
}

// Rows returns the number of accepted records.
func (b *Batch) Rows() int {
	return len(b.Listings) + len(b.Providers) + len(b.Catalog)
}

// Add normalizes row as kind and appends it to b. Mixed rows are classified
// by their fields. A listing without a URL whose title repeats an earlier
// listing of the same batch is dropped as a duplicate, since nothing else
// identifies it.
func (n *Normalizer) Add(b *Batch, kind model.Dataset, row Row, keyword, source string) {
	if kind == model.DatasetMixed {
		kind = ClassifyRow(row)
	}
	switch kind {
	case model.DatasetProviders:
		p, ok := n.Provider(row, keyword, source)
		if !ok {
			b.Dropped++
			return
		}
		b.Providers = append(b.Providers, p)
	case model.DatasetCatalog:
		c, ok := n.Catalog(row, keyword, source)
		if !ok {
			b.Dropped++
			return
		}
		b.Catalog = append(b.Catalog, c)
	default:
		l, ok := n.Listing(row, keyword, source)
		if !ok {
			b.Dropped++
			return
		}
		if b.titles == nil {
			b.titles = make(map[string]bool)
		}
		title := strings.ToLower(l.Title)
		if l.URL == "" && b.titles[title] {
			b.Dropped++
			return
		}
		b.titles[title] = true
		b.Listings = append(b.Listings, l)
	}
}
