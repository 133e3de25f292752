package core

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier for stored entities.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// SafeSearch is the adult-content filtering level requested from engines.
type SafeSearch int

const (
	SafeSearchOff SafeSearch = iota
	SafeSearchModerate
	SafeSearchStrict
)

// TimeRange restricts results to a recent publication window.
type TimeRange int

const (
	TimeRangeAny TimeRange = iota
	TimeRangeHour
	TimeRangeDay
	TimeRangeWeek
	TimeRangeMonth
	TimeRangeYear
)

// ResultType classifies a single result item.
type ResultType int

const (
	ResultTypeWeb ResultType = iota
	ResultTypeImage
	ResultTypeVideo
	ResultTypeNews
	ResultTypeAcademic
	ResultTypeCode
	ResultTypeShopping
)

// EngineType classifies an engine by the kind of content it searches.
type EngineType int

const (
	EngineTypeGeneral EngineType = iota
	EngineTypeImage
	EngineTypeVideo
	EngineTypeNews
	EngineTypeAcademic
	EngineTypeCode
	EngineTypeShopping
	EngineTypeOther
)

// SearchQuery is the immutable description of one user query.
type SearchQuery struct {
	Query      string
	Language   string
	Region     string
	Page       int
	PageSize   int
	SafeSearch SafeSearch
	TimeRange  TimeRange
	Params     map[string]string // Opaque per-engine parameters
}

// NewSearchQuery returns a query for the first page with the default page size.
func NewSearchQuery(text string) SearchQuery {
	return SearchQuery{
		Query:    text,
		Page:     1,
		PageSize: DefaultPageSize,
	}
}

// Tokens splits the query text into lower-cased whitespace tokens.
func (q SearchQuery) Tokens() []string {
	return strings.Fields(strings.ToLower(q.Query))
}

// ForEngine returns a copy of the query adapted to an engine's capabilities.
// The page size is clamped to the engine's maximum when one is declared.
func (q SearchQuery) ForEngine(meta EngineMetadata) SearchQuery {
	if meta.MaxPageSize > 0 && q.PageSize > meta.MaxPageSize {
		q.PageSize = meta.MaxPageSize
	}
	return q
}

// EngineMetadata describes an engine adapter. It is static for the adapter's lifetime.
type EngineMetadata struct {
	Name               string
	Type               EngineType
	Categories         []string
	SupportsPagination bool
	SupportsTimeRange  bool
	SupportsSafeSearch bool
	MaxPageSize        int // 0 means no declared limit
}

// EngineHealth is the failure bookkeeping for a single engine.
type EngineHealth struct {
	Enabled             bool
	TemporarilyDisabled bool
	ConsecutiveFailures int
	LastFailureTime     time.Time
}

// ResultItem is a single search hit. Its identity for deduplication is URLKey.
type ResultItem struct {
	Title         string            `json:"title"`
	URL           string            `json:"url"`
	Content       string            `json:"content"`
	Score         float64           `json:"score"`
	DisplayURL    string            `json:"display_url,omitempty"`
	SiteName      string            `json:"site_name,omitempty"`
	Thumbnail     string            `json:"-"`
	PublishedDate time.Time         `json:"-"`
	Template      string            `json:"-"`
	ResultType    ResultType        `json:"-"`
	Metadata      map[string]string `json:"-"`
}

// URLKey returns the case-insensitive deduplication key of the item.
func (r *ResultItem) URLKey() string {
	return strings.ToLower(strings.TrimSpace(r.URL))
}

// Pagination describes where a result set sits in the engine's result list.
type Pagination struct {
	Page     int
	PageSize int
	HasMore  bool
}

// ResultSet is the output of one source for one call.
type ResultSet struct {
	Source       string
	Elapsed      time.Duration
	Items        []ResultItem
	TotalResults int // Engine estimate, 0 when unknown
	Pagination   *Pagination
	Suggestions  []string
}

// SearchResponse is the envelope returned to callers.
type SearchResponse struct {
	Query       string       `json:"query"`
	Results     []ResultItem `json:"results"`
	TotalCount  int          `json:"total_count"`
	Cached      bool         `json:"cached"`
	QueryTimeMS int64        `json:"query_time_ms"`
	EnginesUsed []string     `json:"engines_used"`
}

// RankingKeyword is one weighted keyword of an RSS ranking view.
type RankingKeyword struct {
	Keyword  string  `yaml:"keyword"`
	Weight   float64 `yaml:"weight"`
	Required bool    `yaml:"required"`
}

// RankingConfig is a named RSS ranking view.
type RankingConfig struct {
	Name       string           `yaml:"name"`
	Keywords   []RankingKeyword `yaml:"keywords"`
	MinScore   float64          `yaml:"min_score"`
	MaxResults int              `yaml:"max_results"` // 0 means unlimited
}

// FeedItem is an entry of the RSS content store.
type FeedItem struct {
	GUID      string
	FeedURL   string
	Title     string
	Content   string
	Link      string
	Author    string
	Published time.Time
}

// Identity returns the value feed items are deduplicated on: the GUID, or the link when absent.
func (f *FeedItem) Identity() string {
	if f.GUID != "" {
		return f.GUID
	}
	return f.Link
}

// ScoredItem is a feed item with its ranking score.
type ScoredItem struct {
	Item            FeedItem
	Score           float64
	MatchedKeywords []string
}

// CacheEntry is a stored result list for one (query, engine) pair.
// Entries are retained after ExpiresAt so that full-text search can reach them.
type CacheEntry struct {
	Key       string
	Query     string
	Engine    string
	Items     []ResultItem
	StoredAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the entry's TTL has elapsed at now.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStats counts result cache activity since the store was opened.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Writes    uint64
	Deletes   uint64
	Evictions uint64
}

// QueryVector is the embedding of a cached query, used for semantic cache lookups.
// Scope restricts matches to entries answering the same engine, page and locale.
type QueryVector struct {
	Key    string
	Query  string
	Scope  string
	Vector []float32
}

// QueryMatch is a cached query found by vector similarity.
type QueryMatch struct {
	Key   string
	Query string
	Score float32
}

// CacheKey derives the storage key for a query served by an engine.
// Query text, pagination, language, region and engine all participate.
func CacheKey(q SearchQuery, engine string) string {
	var b strings.Builder
	b.WriteString(q.Query)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(q.Page))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(q.PageSize))
	b.WriteByte(0)
	b.WriteString(q.Language)
	b.WriteByte(0)
	b.WriteString(q.Region)
	b.WriteByte(0)
	b.WriteString(engine)

	h, _ := blake2b.New(8, nil)
	h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil))
}
