package normalize

import (
	"regexp"
	"strings"

	"github.com/roach88/gigrank/internal/model"
)

var (
	listingIDPattern  = regexp.MustCompile(`/jobs?/([^/?#]+)`)
	providerIDPattern = regexp.MustCompile(`~[A-Za-z0-9]+`)
	catalogIDPattern  = regexp.MustCompile(`catalog/(\d+)`)
	nonAlnum          = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

const maxSlugLen = 120

// ListingKey derives the stable natural key for a listing. The marketplace
// job id in the URL wins; any other URL becomes a slug; without a URL the
// key hashes title and keyword.
func ListingKey(url, title, keyword string) string {
	if url != "" {
		if m := listingIDPattern.FindStringSubmatch(url); m != nil {
			return strings.ToLower(m[1])
		}
		return urlSlug(url)
	}
	return model.FallbackKey(title, keyword)
}

// ProviderKey derives the stable natural key for a provider profile.
func ProviderKey(url, name, keyword string) string {
	if url != "" {
		if m := providerIDPattern.FindString(url); m != "" {
			return strings.ToLower(m)
		}
		return urlSlug(url)
	}
	return model.FallbackKey(name, keyword)
}

// CatalogKey derives the stable natural key for a catalog item.
func CatalogKey(url, title, keyword string) string {
	if url != "" {
		if m := catalogIDPattern.FindStringSubmatch(url); m != nil {
			return m[1]
		}
		return urlSlug(url)
	}
	return model.FallbackKey(title, keyword)
}

func urlSlug(url string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(url), "_")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return "url_" + slug
}
