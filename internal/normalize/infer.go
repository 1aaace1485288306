package normalize

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roach88/gigrank/internal/model"
)

// DefaultKeyword tags records whose file name and directory carry no usable
// keyword.
const DefaultKeyword = "general"

var (
	ignoredStemTokens = map[string]bool{
		"upwork": true, "scrape": true, "jobs": true, "job": true,
		"talent": true, "projects": true, "project": true, "run": true,
	}
	numericToken   = regexp.MustCompile(`^\d+$`)
	dateToken      = regexp.MustCompile(`^\d{2}-\d{2}-\d{2}$`)
	dateDirSuffix  = regexp.MustCompile(`_[0-9]{2}-[0-9]{2}-[0-9]{2}$`)
	stampDirSuffix = regexp.MustCompile(`_\d{8,}$`)
)

// InferKeyword derives a keyword tag from an export file name such as
// "upwork_jobs_rag_chatbot_24-01-15.csv" ("rag chatbot"), falling back to
// the parent directory name and then DefaultKeyword.
func InferKeyword(path string) string {
	base := filepath.Base(path)
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))

	var cleaned []string
	for _, tok := range strings.Split(stem, "_") {
		tok = strings.TrimSpace(tok)
		if tok == "" || ignoredStemTokens[tok] || numericToken.MatchString(tok) || dateToken.MatchString(tok) {
			continue
		}
		cleaned = append(cleaned, tok)
		if len(cleaned) == 6 {
			break
		}
	}
	if len(cleaned) > 0 {
		return strings.Join(cleaned, " ")
	}

	parent := filepath.Base(filepath.Dir(path))
	if parent == "." || parent == string(filepath.Separator) {
		return DefaultKeyword
	}
	parent = dateDirSuffix.ReplaceAllString(parent, "")
	parent = stampDirSuffix.ReplaceAllString(parent, "")
	parent = CanonicalKeyword(strings.ReplaceAll(parent, "_", " "))
	if parent == "" {
		return DefaultKeyword
	}
	return parent
}

// DetectDataset classifies an export file by name.
func DetectDataset(path string) model.Dataset {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "jobs"):
		return model.DatasetListings
	case strings.Contains(name, "talent"):
		return model.DatasetProviders
	case strings.Contains(name, "project"):
		return model.DatasetCatalog
	default:
		return model.DatasetMixed
	}
}

// ClassifyRow decides the entity kind of a row from a mixed export by the
// fields it carries.
func ClassifyRow(row Row) model.Dataset {
	switch {
	case row.Has("hourly_rate") || row.Has("jobs_completed"):
		return model.DatasetProviders
	case row.Has("sales") || row.Has("category"):
		return model.DatasetCatalog
	default:
		return model.DatasetListings
	}
}

// CanonicalKeyword lower-cases and collapses whitespace so that keyword tags
// group consistently.
func CanonicalKeyword(s string) string {
	return strings.ToLower(Text(s))
}
