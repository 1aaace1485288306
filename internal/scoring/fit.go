package scoring

import (
	"strings"
)

// Term is one weighted phrase in the fit table. Negative weights mark
// explicitly undesired work.
type Term struct {
	Phrase string  `yaml:"phrase" json:"phrase"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Weights for terms added from a profile.
const (
	ProfileSkillWeight   = 10
	ProfileKeywordWeight = 8
)

var defaultTerms = []Term{
	// core
	{"python", 14}, {"n8n", 14}, {"fastapi", 14}, {"langchain", 14},
	{"rag", 14}, {"ai agent", 14}, {"api integration", 14}, {"automation", 14},
	{"web scraping", 14}, {"data extraction", 14}, {"etl", 14},
	{"vector database", 14}, {"pinecone", 12}, {"chromadb", 12},
	{"prompt engineering", 14}, {"chatbot", 14}, {"sql", 12},
	// secondary
	{"openai", 12}, {"workflow automation", 12}, {"data pipeline", 12},
	{"automated workflow", 10}, {"process automation", 10},
	{"excel automation", 10}, {"google sheets", 10}, {"data cleaning", 10},
	{"pdf extraction", 10}, {"email extraction", 10}, {"reporting", 8},
	// ecosystem
	{"llm", 12}, {"gpt", 10}, {"ai", 10}, {"machine learning", 8}, {"nlp", 8},
	{"flask", 8}, {"scraping", 10}, {"selenium", 8}, {"beautifulsoup", 8},
	{"pandas", 8}, {"agentic", 12}, {"crewai", 10}, {"langgraph", 12},
	{"autogen", 10},
	// avoid
	{"wordpress theme", -20}, {"graphic design", -20}, {"video editing", -20},
	{"social media management", -15}, {"seo writing", -15},
	{"content writing", -10}, {"react native", -10}, {"flutter", -10},
	{"unity", -15}, {"game development", -15}, {"accounting", -15},
	{"bookkeeping", -15},
}

// FitTable is an ordered, immutable set of weighted phrases.
type FitTable struct {
	terms []Term
	index map[string]int
}

// DefaultFitTable returns the built-in term table.
func DefaultFitTable() *FitTable {
	return NewFitTable(defaultTerms)
}

// NewFitTable builds a table from terms. Phrases are lower-cased; a repeated
// phrase keeps its first weight.
func NewFitTable(terms []Term) *FitTable {
	t := &FitTable{index: make(map[string]int, len(terms))}
	for _, term := range terms {
		t.add(term)
	}
	return t
}

func (t *FitTable) add(term Term) {
	phrase := strings.ToLower(strings.TrimSpace(term.Phrase))
	if phrase == "" {
		return
	}
	if _, ok := t.index[phrase]; ok {
		return
	}
	t.index[phrase] = len(t.terms)
	t.terms = append(t.terms, Term{Phrase: phrase, Weight: term.Weight})
}

// Extend returns a copy of t with the profile's extra terms, skills and ideal
// keywords appended. Existing phrases are never re-weighted.
func (t *FitTable) Extend(p Profile) *FitTable {
	out := NewFitTable(t.terms)
	for _, term := range p.Terms {
		out.add(term)
	}
	for _, s := range p.Skills {
		out.add(Term{Phrase: s, Weight: ProfileSkillWeight})
	}
	for _, k := range p.IdealKeywords {
		out.add(Term{Phrase: k, Weight: ProfileKeywordWeight})
	}
	return out
}

// Terms returns the table in order.
func (t *FitTable) Terms() []Term {
	out := make([]Term, len(t.terms))
	copy(out, t.terms)
	return out
}

// Weight returns the weight of phrase and whether it is in the table.
func (t *FitTable) Weight(phrase string) (float64, bool) {
	i, ok := t.index[strings.ToLower(phrase)]
	if !ok {
		return 0, false
	}
	return t.terms[i].Weight, true
}

// Fit sums the weights of every phrase contained in text and clamps the
// total to [0,100]. Seven core skills land near 100.
func (t *FitTable) Fit(text string) float64 {
	lower := strings.ToLower(text)
	var raw float64
	for _, term := range t.terms {
		if strings.Contains(lower, term.Phrase) {
			raw += term.Weight
		}
	}
	return Round2(Clamp(raw))
}

// Matches returns up to limit positive phrases found in text, in table order.
func (t *FitTable) Matches(text string, limit int) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, term := range t.terms {
		if len(out) == limit {
			break
		}
		if term.Weight > 0 && strings.Contains(lower, term.Phrase) {
			out = append(out, term.Phrase)
		}
	}
	return out
}
