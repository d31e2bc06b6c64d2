package searcher

import (
	"cmp"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/skillindex/internal/dense"
	"github.com/dshills/skillindex/internal/fusion"
	"github.com/dshills/skillindex/internal/index"
	"github.com/dshills/skillindex/internal/vector"
	"github.com/dshills/skillindex/pkg/types"
)

const (
	// DefaultK is the result count transports use when none is given
	DefaultK = 5
	// MaxK is the largest accepted result count
	MaxK = 100

	hybridOverfetch = 4
	singleOverfetch = 3

	// FieldBonusScale scales the weighted field evidence added to the score
	FieldBonusScale = 0.05
	// SnippetLength is the number of characters shown from the top field
	SnippetLength = 240

	defaultCacheSize = 1000
	defaultCacheTTL  = 5 * time.Minute
)

// SnapshotSource hands out the currently published index
type SnapshotSource interface {
	Current() *index.Snapshot
}

// Request contains parameters for a search operation
type Request struct {
	Query        string
	K            int
	Engine       string
	HybridWeight *float64          // dense share in [0,1]; index default when nil
	FieldWeights map[string]float64 // per-query override merged over the index weights
	Filters      Filters
	UseCache     bool
}

// Response contains search results and metadata
type Response struct {
	Query        string               `json:"query"`
	EngineUsed   Engine               `json:"engine_used"`
	HybridWeight *float64             `json:"hybrid_weight"`
	FieldWeights map[string]float64   `json:"field_weights"`
	Filters      Filters              `json:"filters"`
	Results      []types.SearchResult `json:"results"`

	Duration time.Duration `json:"-"`
	CacheHit bool          `json:"-"`
}

// Config contains configuration for the searcher
type Config struct {
	QueryTimeout time.Duration // bound on dense query encoding (default: 30s)
	CacheSize    int           // result cache entries (default: 1000)
	CacheTTL     time.Duration // result cache lifetime (default: 5m)
	Logger       *slog.Logger
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher runs queries against the published snapshot
type Searcher struct {
	source  SnapshotSource
	dense   *dense.Builder
	config  Config
	logger  *slog.Logger
	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher instance. A nil dense builder serves sparse only.
func NewSearcher(source SnapshotSource, denseBuilder *dense.Builder, config *Config) *Searcher {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if denseBuilder == nil {
		denseBuilder = dense.NewBuilder(nil, cfg.Logger)
	}

	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		source: source,
		dense:  denseBuilder,
		config: cfg,
		logger: cfg.Logger,
		cache:  cache,
	}
}

// query carries the per-request state through scoring
type query struct {
	text         string
	k            int
	engine       Engine
	hybridWeight float64
	weights      map[string]float64
	filters      Filters
	sparse       vector.Sparse
	hasSparse    bool
	dense        vector.Dense
}

// candidate is one retrieved document before bonuses
type candidate struct {
	position   int
	score      float64
	scores     map[string]float64 // raw sub-engine scores, hybrid only
	components map[string]float64 // normalized sub-engine scores, hybrid only
}

// Search validates the request, resolves the engine and ranks documents
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	requested, err := validateRequest(&req)
	if err != nil {
		return nil, err
	}

	snap := s.source.Current()
	if snap == nil {
		return nil, types.ErrIndexNotBuilt
	}

	engine, err := resolve(requested, s.capabilities(snap))
	if err != nil {
		return nil, err
	}

	q := &query{
		text:    req.Query,
		k:       req.K,
		engine:  engine,
		weights: fusion.ResolveWeights(snap.Meta.FieldWeights, req.FieldWeights),
		filters: req.Filters.normalized(),
	}
	q.hybridWeight = snap.Meta.HybridWeightDefault
	if q.hybridWeight <= 0 || q.hybridWeight > 1 {
		q.hybridWeight = types.DefaultHybridWeight
	}
	if req.HybridWeight != nil {
		q.hybridWeight = *req.HybridWeight
	}

	var cacheKey [32]byte
	if req.UseCache {
		cacheKey = computeQueryHash(snap, q)
		if cached := s.checkCache(cacheKey); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	if snap.Vectorizer != nil {
		q.sparse = snap.Vectorizer.Transform(q.text)
		q.hasSparse = true
	}

	var candidates []candidate
	switch engine {
	case EngineHybrid:
		candidates, err = s.hybridSearch(ctx, snap, q)
	case EngineDense:
		candidates, err = s.denseSearch(ctx, snap, q)
		if err != nil && requested == EngineAuto && snap.HasSparse() {
			s.logger.Warn("dense query failed, falling back to sparse", "error", err)
			q.engine = EngineSparse
			candidates, err = s.sparseSearch(snap, q), nil
		}
	default:
		candidates = s.sparseSearch(snap, q)
	}
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Query:        q.text,
		EngineUsed:   q.engine,
		FieldWeights: q.weights,
		Filters:      q.filters,
		Results:      s.rank(snap, q, candidates),
	}
	if q.engine == EngineHybrid {
		w := q.hybridWeight
		resp.HybridWeight = &w
	}
	resp.Duration = time.Since(startTime)

	// A fallback answer is keyed as the engine that failed; keep it out of
	// the cache so a recovered provider is used again.
	if req.UseCache && q.engine == engine {
		s.storeInCache(cacheKey, resp)
	}
	return resp, nil
}

// capabilities reports what snap and the configured provider can serve
func (s *Searcher) capabilities(snap *index.Snapshot) capabilities {
	var c capability
	if snap.HasSparse() {
		c |= capSparseIndex
	}
	if snap.HasDense() {
		c |= capDenseIndex
	}
	if emb := s.dense.Embedder(); emb != nil &&
		emb.Provider() == snap.Meta.DenseProvider && emb.Model() == snap.Meta.DenseModel {
		c |= capProvider
	}
	return capabilities(c)
}

func (s *Searcher) encodeDense(ctx context.Context, text string) (vector.Dense, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	v, err := s.dense.EncodeQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode query: %w", types.ErrProviderUnavailable, err)
	}
	return v, nil
}

// sparseSearch scores the combined sparse index only
func (s *Searcher) sparseSearch(snap *index.Snapshot, q *query) []candidate {
	hits := snap.Sparse.Search(q.sparse, candidateCount(q.k, singleOverfetch, snap.Len()))
	return fromHits(hits)
}

// denseSearch scores the combined dense index only
func (s *Searcher) denseSearch(ctx context.Context, snap *index.Snapshot, q *query) ([]candidate, error) {
	v, err := s.encodeDense(ctx, q.text)
	if err != nil {
		return nil, err
	}
	q.dense = v
	hits := snap.Dense.Search(v, candidateCount(q.k, singleOverfetch, snap.Len()))
	return fromHits(hits), nil
}

func fromHits(hits []vector.Hit) []candidate {
	out := make([]candidate, len(hits))
	for i, h := range hits {
		out[i] = candidate{position: h.Position, score: h.Score}
	}
	return out
}

// searchResult holds results from concurrent search operations
type searchResult struct {
	hits  []vector.Hit
	query vector.Dense
	err   error
}

// runDenseSearch encodes the query and searches the dense index in a goroutine
func (s *Searcher) runDenseSearch(ctx context.Context, snap *index.Snapshot, q *query, n int, resultChan chan<- searchResult) {
	var res searchResult
	res.query, res.err = s.encodeDense(ctx, q.text)
	if res.err == nil {
		res.hits = snap.Dense.Search(res.query, n)
	}
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// runSparseSearch searches the sparse index in a goroutine
func (s *Searcher) runSparseSearch(ctx context.Context, snap *index.Snapshot, q *query, n int, resultChan chan<- searchResult) {
	res := searchResult{hits: snap.Sparse.Search(q.sparse, n)}
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// hybridSearch retrieves from both engines, normalizes each score slot with
// min-max over the union and blends them with the effective weight
func (s *Searcher) hybridSearch(ctx context.Context, snap *index.Snapshot, q *query) ([]candidate, error) {
	n := candidateCount(q.k, hybridOverfetch, snap.Len())
	denseChan := make(chan searchResult, 1)
	sparseChan := make(chan searchResult, 1)

	go s.runDenseSearch(ctx, snap, q, n, denseChan)
	go s.runSparseSearch(ctx, snap, q, n, sparseChan)

	// Wait for both searches
	var denseRes, sparseRes searchResult
	var denseDone, sparseDone bool
	for !denseDone || !sparseDone {
		select {
		case denseRes = <-denseChan:
			denseDone = true
		case sparseRes = <-sparseChan:
			sparseDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if denseRes.err != nil {
		return nil, denseRes.err
	}
	q.dense = denseRes.query

	// a document found by one engine scores 0 in the other slot
	order := make([]int, 0, len(denseRes.hits)+len(sparseRes.hits))
	slots := make(map[int]*[2]float64, cap(order))
	for _, h := range denseRes.hits {
		slots[h.Position] = &[2]float64{h.Score, 0}
		order = append(order, h.Position)
	}
	for _, h := range sparseRes.hits {
		if slot, ok := slots[h.Position]; ok {
			slot[1] = h.Score
			continue
		}
		slots[h.Position] = &[2]float64{0, h.Score}
		order = append(order, h.Position)
	}

	denseRaw := make([]float64, len(order))
	sparseRaw := make([]float64, len(order))
	for i, pos := range order {
		denseRaw[i], sparseRaw[i] = slots[pos][0], slots[pos][1]
	}
	denseNorm := minMax(denseRaw)
	sparseNorm := minMax(sparseRaw)

	eff := EffectiveWeight(q.hybridWeight, q.text)
	candidates := make([]candidate, len(order))
	for i, pos := range order {
		candidates[i] = candidate{
			position: pos,
			score:    eff*denseNorm[i] + (1-eff)*sparseNorm[i],
			scores: map[string]float64{
				types.EngineDense:  denseRaw[i],
				types.EngineSparse: sparseRaw[i],
			},
			components: map[string]float64{
				types.EngineDense:  denseNorm[i],
				types.EngineSparse: sparseNorm[i],
				"effective_weight": eff,
			},
		}
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(b.score, a.score)
	})
	return candidates, nil
}

// rank filters candidates, adds the exact-match and field-evidence bonuses,
// re-sorts by final score and truncates to k
func (s *Searcher) rank(snap *index.Snapshot, q *query, candidates []candidate) []types.SearchResult {
	results := make([]types.SearchResult, 0, min(len(candidates), q.k))
	active := q.filters.Active()

	for _, c := range candidates {
		doc := &snap.Documents[c.position]
		if active && !q.filters.Match(doc) {
			continue
		}

		fieldScores := fieldEvidence(snap, q, c.position)
		result := types.SearchResult{
			ID:               doc.ID,
			Name:             doc.Name,
			Description:      doc.Description,
			Score:            c.score,
			MatchedFields:    fieldScores,
			Tags:             doc.Tags,
			Owner:            doc.Owner,
			Contact:          doc.Contact,
			Source:           doc.Source,
			SecurityScore:    doc.SecurityScore,
			RequiresInternet: doc.RequiresInternet,
		}
		if result.MatchedFields == nil {
			result.MatchedFields = []types.FieldScore{}
		}

		result.TopField, result.Snippet = snippet(doc, fieldScores)

		if IsExactMatch(q.text, doc.Name) {
			result.ExactMatch = true
			result.Score += ExactMatchBonus
		}
		result.Score += fieldBonus(fieldScores, q.weights)

		if q.engine == EngineHybrid {
			result.EngineScores = c.scores
			result.EngineScoreComponents = c.components
		}
		results = append(results, result)
	}

	slices.SortStableFunc(results, func(a, b types.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > q.k {
		results = results[:q.k]
	}
	return results
}

// validateRequest checks the request and returns the requested engine
func validateRequest(req *Request) (Engine, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return "", fmt.Errorf("%w: query cannot be empty", types.ErrInvalidRequest)
	}

	if req.K < 1 || req.K > MaxK {
		return "", fmt.Errorf("%w: k must be between 1 and %d", types.ErrInvalidRequest, MaxK)
	}

	engine, err := ParseEngine(req.Engine)
	if err != nil {
		return "", err
	}

	if w := req.HybridWeight; w != nil && (math.IsNaN(*w) || *w < 0 || *w > 1) {
		return "", fmt.Errorf("%w: hybrid_weight must be within [0, 1]", types.ErrInvalidRequest)
	}

	for field, w := range req.FieldWeights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return "", fmt.Errorf("%w: field weight %s must be a non-negative number", types.ErrInvalidRequest, field)
		}
	}

	return engine, nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(hash [32]byte) *Response {
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	// Check if entry has expired while holding read lock to avoid race condition
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		// Remove expired entry - need write lock
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(hash [32]byte, response *Response) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(s.config.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copyResponse creates a copy of a Response whose result slice and
// per-result maps are not shared with src
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, r := range src.Results {
		r.MatchedFields = slices.Clone(r.MatchedFields)
		r.Tags = slices.Clone(r.Tags)
		r.EngineScores = cloneMap(r.EngineScores)
		r.EngineScoreComponents = cloneMap(r.EngineScoreComponents)
		dst.Results[i] = r
	}
	return &dst
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// computeQueryHash keys a cached response on the snapshot and every
// parameter that affects ranking
func computeQueryHash(snap *index.Snapshot, q *query) [32]byte {
	var data strings.Builder
	fmt.Fprintf(&data, "%s|%d|%s|", snap.Meta.BuildID, snap.LoadedAt.UnixNano(), snap.Meta.UpdatedAt.Format(time.RFC3339Nano))
	fmt.Fprintf(&data, "%s|%d|%s|%.6f|", q.text, q.k, q.engine, q.hybridWeight)

	for _, field := range types.Fields {
		fmt.Fprintf(&data, "%s=%.6f,", field, q.weights[field])
	}

	data.WriteString("|filters:")
	data.WriteString(strings.Join(q.filters.Tags, ","))
	data.WriteString("|")
	data.WriteString(q.filters.Owner)
	data.WriteString("|")
	data.WriteString(q.filters.Source)
	if q.filters.RequiresInternet != nil {
		fmt.Fprintf(&data, "|%t", *q.filters.RequiresInternet)
	}

	return sha256.Sum256([]byte(data.String()))
}
