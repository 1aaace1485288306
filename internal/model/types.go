package model

import (
	"encoding/json"
	"time"
)

// Dataset identifies the kind of rows an export file carries.
type Dataset string

const (
	DatasetListings  Dataset = "listings"
	DatasetProviders Dataset = "providers"
	DatasetCatalog   Dataset = "catalog"
	DatasetMixed     Dataset = "mixed"
)

// Listing is one job posting.
type Listing struct {
	Key             string    `json:"listing_key"`
	Keyword         string    `json:"keyword"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	URL             string    `json:"url"`
	BudgetRaw       string    `json:"budget"`
	Budget          *float64  `json:"budget_value"`
	ClientSpend     *float64  `json:"client_spend"`
	PaymentVerified bool      `json:"payment_verified"`
	ProposalsRaw    string    `json:"proposals"`
	Skills          []string  `json:"skills"`
	SourceFile      string    `json:"source_file"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// Proposals returns the parsed lower bound of the proposal count.
// Marketplaces render ranges ("10 to 15", "50+"); the first number wins.
func (l Listing) Proposals() int {
	return LeadingInt(l.ProposalsRaw)
}

// BudgetValue returns the parsed budget or 0 when absent.
func (l Listing) BudgetValue() float64 {
	if l.Budget == nil {
		return 0
	}
	return *l.Budget
}

// SpendValue returns the client's historical spend or 0 when absent.
func (l Listing) SpendValue() float64 {
	if l.ClientSpend == nil {
		return 0
	}
	return *l.ClientSpend
}

// Provider is one freelancer profile.
type Provider struct {
	Key           string    `json:"provider_key"`
	Keyword       string    `json:"keyword"`
	Name          string    `json:"name"`
	Headline      string    `json:"headline"`
	Description   string    `json:"description"`
	URL           string    `json:"url"`
	RateRaw       string    `json:"rate"`
	Rate          *float64  `json:"rate_value"`
	Skills        []string  `json:"skills"`
	Location      string    `json:"location"`
	Rating        *float64  `json:"rating"`
	JobsCompleted *int      `json:"jobs_completed"`
	SourceFile    string    `json:"source_file"`
	ScrapedAt     time.Time `json:"scraped_at"`
}

// CatalogItem is one fixed-price catalog project.
type CatalogItem struct {
	Key         string    `json:"item_key"`
	Keyword     string    `json:"keyword"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Category    string    `json:"category"`
	PriceRaw    string    `json:"price"`
	Price       *float64  `json:"price_value"`
	Rating      *float64  `json:"rating"`
	Sales       *int      `json:"sales"`
	SourceFile  string    `json:"source_file"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// IngestedFile is the audit record for one scanned export file.
type IngestedFile struct {
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	FileType    string    `json:"file_type"`
	Dataset     Dataset   `json:"dataset"`
	Keyword     string    `json:"keyword"`
	RowCount    int       `json:"row_count"`
	DroppedRows int       `json:"dropped_rows"`
	SourceMtime time.Time `json:"source_mtime"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Priority is the recommended tier for a keyword.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityNormal   Priority = "NORMAL"
	PriorityLow      Priority = "LOW"
)

// KeywordMetric is the materialized market view for one keyword.
type KeywordMetric struct {
	Keyword            string    `json:"keyword"`
	Demand             int       `json:"demand"`
	Supply             int       `json:"supply"`
	GapRatio           float64   `json:"gap_ratio"`
	BudgetAvg          float64   `json:"budget_avg"`
	CompetitionInverse float64   `json:"competition_inverse"`
	TrendScore         float64   `json:"trend_score"`
	OpportunityScore   float64   `json:"opportunity_score"`
	Priority           Priority  `json:"priority"`
	ReasonCodes        []string  `json:"reason_codes"`
	LastUpdated        time.Time `json:"last_updated"`
}

// Action is the qualitative recommendation for a listing.
type Action string

const (
	ActionApply Action = "APPLY"
	ActionWatch Action = "WATCH"
	ActionSkip  Action = "SKIP"
)

// Strictness orders actions from loosest (APPLY) to tightest (SKIP).
func (a Action) Strictness() int {
	switch a {
	case ActionApply:
		return 0
	case ActionWatch:
		return 1
	default:
		return 2
	}
}

// Label is the HOT/WARM/COLD priority label.
type Label string

const (
	LabelHot  Label = "HOT"
	LabelWarm Label = "WARM"
	LabelCold Label = "COLD"
)

// Order returns the sort position of the label (HOT first).
func (l Label) Order() int {
	switch l {
	case LabelHot:
		return 0
	case LabelWarm:
		return 1
	default:
		return 2
	}
}

// Judgment is the qualitative result of an external judgment pass.
type Judgment struct {
	Action          Action   `json:"action"`
	Summary         string   `json:"summary,omitempty"`
	Reasoning       string   `json:"reasoning,omitempty"`
	RiskFlags       []string `json:"risk_flags,omitempty"`
	CompositeScore  float64  `json:"composite_score"`
	EffortHours     float64  `json:"effort_hours,omitempty"`
	OpeningHook     string   `json:"opening_hook,omitempty"`
	RecommendedBid  string   `json:"recommended_bid,omitempty"`
	Label           Label    `json:"priority_label,omitempty"`
	TimeSensitivity string   `json:"time_sensitivity,omitempty"`
	RankReason      string   `json:"rank_reason,omitempty"`
	Rank            int      `json:"rank,omitempty"`
}

// Reasons is the structured reason payload stored with an opportunity.
type Reasons struct {
	Codes           []string  `json:"codes"`
	Action          Action    `json:"action,omitempty"`
	Label           Label     `json:"label,omitempty"`
	TimeSensitivity string    `json:"time_sensitivity,omitempty"`
	Judgment        *Judgment `json:"judgment,omitempty"`
}

// Opportunity is the scored decision state of one listing.
type Opportunity struct {
	ListingKey       string    `json:"listing_key"`
	Title            string    `json:"title"`
	Keyword          string    `json:"keyword"`
	OpportunityScore float64   `json:"opportunity_score"`
	SafetyScore      float64   `json:"safety_score"`
	FitScore         float64   `json:"fit_score"`
	FreshnessScore   float64   `json:"freshness_score"`
	ApplyNow         bool      `json:"apply_now"`
	Reasons          Reasons   `json:"reasons"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Judged reports whether an external judgment pass has classified the record.
func (o Opportunity) Judged() bool {
	return o.Reasons.Judgment != nil
}

// Draft is a generated outreach draft for one listing.
type Draft struct {
	ListingKey   string    `json:"listing_key"`
	Body         string    `json:"body"`
	HookPoints   []string  `json:"hook_points"`
	CautionNotes []string  `json:"caution_notes"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QueueTelemetry is the crawler's reported work-queue snapshot.
type QueueTelemetry struct {
	Total       int        `json:"total"`
	Pending     int        `json:"pending"`
	Running     int        `json:"running"`
	Completed   int        `json:"completed"`
	Error       int        `json:"error"`
	LastCycleAt *time.Time `json:"last_cycle_at"`
}

// Summary is the dashboard headline view.
type Summary struct {
	Listings      int        `json:"listings"`
	Providers     int        `json:"providers"`
	CatalogItems  int        `json:"catalog_items"`
	Keywords      int        `json:"keywords"`
	Opportunities int        `json:"opportunities"`
	LastIngestAt  *time.Time `json:"last_ingest_at"`
}

// PipelineEvent is one entry in the pipeline audit log.
type PipelineEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Pipeline event types.
const (
	EventScan      = "scan"
	EventRunIngest = "run_ingest"
	EventRefresh   = "refresh"
	EventTelemetry = "queue_telemetry"
	EventJudgment  = "judgment"
)
