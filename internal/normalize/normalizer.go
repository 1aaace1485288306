package normalize

import (
	"strings"
	"time"

	"github.com/roach88/gigrank/internal/model"
)

// Field alias tables. Order matters: the first non-empty alias wins.
var (
	listingTitle       = []string{"title", "job_title"}
	listingDescription = []string{"description", "snippet", "summary", "detail_summary", "detail_description", "overview"}
	listingURL         = []string{"url", "job_url", "detail_job_url", "detail_url"}
	listingBudget      = []string{"budget", "hourly_rate", "price", "payment"}
	listingSpend       = []string{"client_spend", "spent", "client_total_spent"}
	listingVerified    = []string{"payment_verified", "client_payment_verified", "is_payment_verified"}
	listingProposals   = []string{"proposals", "proposal_count", "bids"}
	listingSkills      = []string{"skills", "skill_tags", "tags"}

	providerName        = []string{"name", "full_name"}
	providerHeadline    = []string{"title", "headline"}
	providerDescription = []string{"description", "overview", "bio", "summary"}
	providerURL         = []string{"url", "profile_url", "detail_profile_url"}
	providerRate        = []string{"hourly_rate", "rate", "price"}
	providerSkills      = []string{"skills", "tags"}
	providerLocation    = []string{"country", "location"}
	providerJobs        = []string{"jobs_completed", "jobs"}

	catalogTitle       = []string{"title", "project_title"}
	catalogDescription = []string{"description", "summary", "detail_project_description"}
	catalogURL         = []string{"url", "project_url", "detail_project_url"}
	catalogPrice       = []string{"price", "budget"}
	catalogCategory    = []string{"category", "service_category"}
	catalogSales       = []string{"sales", "orders"}

	ratingFields    = []string{"rating", "score"}
	keywordFields   = []string{"keyword", "search_keyword", "query", "target_keyword"}
	timestampFields = []string{"scraped_at", "timestamp", "created_at"}
)

// marketSignals are listing detail fields folded into the description under
// a [market_signals] block.
var marketSignals = []struct {
	label   string
	aliases []string
}{
	{"job_availability", []string{"detail_job_availability"}},
	{"posted", []string{"detail_posted", "posted", "posted_date"}},
	{"activity_last_viewed", []string{"detail_activity_last_viewed"}},
	{"activity_interviewing", []string{"detail_activity_interviewing"}},
	{"activity_invites_sent", []string{"detail_activity_invites_sent"}},
	{"activity_unanswered_invites", []string{"detail_activity_unanswered_invites"}},
	{"activity_proposals", []string{"detail_activity_proposals"}},
	{"client_hire_rate", []string{"detail_client_hire_rate"}},
	{"client_jobs_posted", []string{"detail_client_jobs_posted"}},
	{"client_open_jobs", []string{"detail_client_open_jobs"}},
	{"client_member_since", []string{"detail_client_member_since"}},
}

// Normalizer converts Rows to canonical entities.
type Normalizer struct {
	now func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source used for rows without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Listing normalizes a job posting row. ok is false when the row has no
// usable title.
func (n *Normalizer) Listing(row Row, keyword, source string) (model.Listing, bool) {
	title := Text(row.Value(listingTitle...))
	if title == "" {
		return model.Listing{}, false
	}

	description := Body(row.Value(listingDescription...))
	var signals []string
	for _, sig := range marketSignals {
		if v := Text(row.Value(sig.aliases...)); v != "" {
			signals = append(signals, sig.label+": "+v)
		}
	}
	if len(signals) > 0 {
		description = strings.TrimSpace(description + "\n\n[market_signals]\n" + strings.Join(signals, "\n"))
	}

	kw := n.keyword(row, keyword)
	url := Text(row.Value(listingURL...))
	budgetRaw := Text(row.Value(listingBudget...))

	l := model.Listing{
		Key:             ListingKey(url, title, kw),
		Keyword:         kw,
		Title:           title,
		Description:     description,
		URL:             url,
		BudgetRaw:       budgetRaw,
		PaymentVerified: ParseBool(row.Value(listingVerified...)),
		ProposalsRaw:    Text(row.Value(listingProposals...)),
		Skills:          SplitSkills(row.Value(listingSkills...)),
		SourceFile:      source,
		ScrapedAt:       n.scrapedAt(row),
	}
	if v, ok := ParseMoney(budgetRaw); ok {
		l.Budget = &v
	}
	if v, ok := ParseMoney(row.Value(listingSpend...)); ok {
		l.ClientSpend = &v
	}
	return l, true
}

// Provider normalizes a freelancer profile row. ok is false when the row has
// neither a name nor a headline.
func (n *Normalizer) Provider(row Row, keyword, source string) (model.Provider, bool) {
	name := Text(row.Value(providerName...))
	headline := Text(row.Value(providerHeadline...))
	if name == "" && headline == "" {
		return model.Provider{}, false
	}

	kw := n.keyword(row, keyword)
	url := Text(row.Value(providerURL...))
	ident := name
	if ident == "" {
		ident = headline
	}
	rateRaw := Text(row.Value(providerRate...))

	p := model.Provider{
		Key:         ProviderKey(url, ident, kw),
		Keyword:     kw,
		Name:        name,
		Headline:    headline,
		Description: Body(row.Value(providerDescription...)),
		URL:         url,
		RateRaw:     rateRaw,
		Skills:      SplitSkills(row.Value(providerSkills...)),
		Location:    Text(row.Value(providerLocation...)),
		SourceFile:  source,
		ScrapedAt:   n.scrapedAt(row),
	}
	if v, ok := ParseMoney(rateRaw); ok {
		p.Rate = &v
	}
	if v, ok := ParseFloat(row.Value(ratingFields...)); ok {
		p.Rating = &v
	}
	if v, ok := ParseInt(row.Value(providerJobs...)); ok {
		p.JobsCompleted = &v
	}
	return p, true
}

// Catalog normalizes a catalog project row. ok is false when the row has no
// usable title.
func (n *Normalizer) Catalog(row Row, keyword, source string) (model.CatalogItem, bool) {
	title := Text(row.Value(catalogTitle...))
	if title == "" {
		return model.CatalogItem{}, false
	}

	kw := n.keyword(row, keyword)
	url := Text(row.Value(catalogURL...))
	priceRaw := Text(row.Value(catalogPrice...))

	c := model.CatalogItem{
		Key:         CatalogKey(url, title, kw),
		Keyword:     kw,
		Title:       title,
		Description: Body(row.Value(catalogDescription...)),
		URL:         url,
		Category:    Text(row.Value(catalogCategory...)),
		PriceRaw:    priceRaw,
		SourceFile:  source,
		ScrapedAt:   n.scrapedAt(row),
	}
	if v, ok := ParseMoney(priceRaw); ok {
		c.Price = &v
	}
	if v, ok := ParseFloat(row.Value(ratingFields...)); ok {
		c.Rating = &v
	}
	if v, ok := ParseInt(row.Value(catalogSales...)); ok {
		c.Sales = &v
	}
	return c, true
}

func (n *Normalizer) keyword(row Row, fallback string) string {
	if kw := CanonicalKeyword(row.String(keywordFields...)); kw != "" {
		return kw
	}
	if kw := CanonicalKeyword(fallback); kw != "" {
		return kw
	}
	return DefaultKeyword
}

func (n *Normalizer) scrapedAt(row Row) time.Time {
	if t, ok := ParseTime(row.Value(timestampFields...)); ok {
		return t
	}
	return n.now().UTC()
}
