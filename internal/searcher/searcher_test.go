package searcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skillindex/internal/dense"
	"github.com/dshills/skillindex/internal/embedder"
	"github.com/dshills/skillindex/internal/index"
	"github.com/dshills/skillindex/internal/indexer"
	"github.com/dshills/skillindex/internal/sparse"
	"github.com/dshills/skillindex/internal/storage"
	"github.com/dshills/skillindex/internal/vector"
	"github.com/dshills/skillindex/pkg/types"
)

// staticSource always serves the same snapshot
type staticSource struct {
	snap *index.Snapshot
}

func (s staticSource) Current() *index.Snapshot { return s.snap }

// fixedEmbedder returns the same query vector for every text
type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &embedder.Embedding{Vector: f.vec, Dimension: len(f.vec), Provider: "fixed", Model: "fixed-v1"}, nil
}

func (f *fixedEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	return nil, errors.New("not supported")
}

func (f *fixedEmbedder) Ping(ctx context.Context) error { return f.err }
func (f *fixedEmbedder) Dimension() int                 { return len(f.vec) }
func (f *fixedEmbedder) Provider() string               { return "fixed" }
func (f *fixedEmbedder) Model() string                  { return "fixed-v1" }
func (f *fixedEmbedder) Close() error                   { return nil }

func localEmbedder(t testing.TB) embedder.Embedder {
	t.Helper()
	emb, err := embedder.NewLocalProvider(32, nil)
	require.NoError(t, err)
	return emb
}

// buildSnapshot indexes docs in an in-memory store and loads the result
func buildSnapshot(t testing.TB, docs []types.Document, emb embedder.Embedder) (*index.Snapshot, *storage.SQLiteStorage, *indexer.Indexer) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	idx := indexer.New(store, dense.NewBuilder(emb, nil), nil)
	_, err = idx.Build(context.Background(), docs, nil)
	require.NoError(t, err)

	snap, err := index.Load(context.Background(), store, nil)
	require.NoError(t, err)
	return snap, store, idx
}

func videoCorpus() []types.Document {
	return []types.Document{
		{ID: "A", Name: "video editor", Description: "cut and trim clips", Tags: types.Tags{"media", "video"}, Owner: "studio"},
		{ID: "B", Name: "spreadsheet tool", Description: "tables and formulas", Tags: types.Tags{"office"}, Owner: "acme"},
		{ID: "C", Name: "Video Editor", Description: "timeline video editing", Tags: types.Tags{"Media"}, Owner: "Acme", RequiresInternet: true},
	}
}

func resultIDs(results []types.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestParseEngine(t *testing.T) {
	tests := []struct {
		name    string
		want    Engine
		wantErr bool
	}{
		{"", EngineAuto, false},
		{"auto", EngineAuto, false},
		{"TFIDF", EngineSparse, false},
		{"sparse", EngineSparse, false},
		{" sbert ", EngineDense, false},
		{"dense", EngineDense, false},
		{"Hybrid", EngineHybrid, false},
		{"bm25", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEngine(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	all := capabilities(capSparseIndex | capDenseIndex | capProvider)
	sparseOnly := capabilities(capSparseIndex)
	noProvider := capabilities(capSparseIndex | capDenseIndex)

	tests := []struct {
		name      string
		requested Engine
		caps      capabilities
		want      Engine
		wantErr   error
	}{
		{"auto prefers dense", EngineAuto, all, EngineDense, nil},
		{"auto sparse only", EngineAuto, sparseOnly, EngineSparse, nil},
		{"auto without provider", EngineAuto, noProvider, EngineSparse, nil},
		{"auto nothing", EngineAuto, 0, "", types.ErrEngineUnavailable},
		{"dense on sparse index", EngineDense, sparseOnly, "", types.ErrEngineUnavailable},
		{"hybrid on sparse index", EngineHybrid, sparseOnly, "", types.ErrEngineUnavailable},
		{"dense without provider", EngineDense, noProvider, "", types.ErrProviderUnavailable},
		{"hybrid without provider", EngineHybrid, noProvider, "", types.ErrProviderUnavailable},
		{"hybrid", EngineHybrid, all, EngineHybrid, nil},
		{"sparse", EngineSparse, all, EngineSparse, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolve(tt.requested, tt.caps)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlpha(t *testing.T) {
	assert.Equal(t, AlphaShortQuery, Alpha("video"))
	assert.Equal(t, AlphaShortQuery, Alpha("video editor"))
	assert.InDelta(t, 0.6166666, Alpha("a b c"), 1e-6)
	assert.InDelta(t, 0.6833333, Alpha("a b c d"), 1e-6)
	assert.Equal(t, AlphaLongQuery, Alpha("a b c d e"))
	assert.Equal(t, AlphaLongQuery, Alpha("a b c d e f g h"))

	prev := 0.0
	for n := 1; n <= 8; n++ {
		q := ""
		for range n {
			q += "word "
		}
		a := Alpha(q)
		assert.GreaterOrEqual(t, a, prev)
		prev = a
	}

	assert.InDelta(t, (0.7+0.55)/2, EffectiveWeight(0.7, "video editor"), 1e-9)
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 0}, minMax([]float64{0.4, 0.4, 0.4}))
	assert.Equal(t, []float64{}, minMax(nil))
	assert.Equal(t, []float64{1, 0, 0.5}, minMax([]float64{3, 1, 2}))
}

func TestCandidateCount(t *testing.T) {
	assert.Equal(t, 20, candidateCount(5, hybridOverfetch, 100))
	assert.Equal(t, 15, candidateCount(5, singleOverfetch, 100))
	assert.Equal(t, 3, candidateCount(5, hybridOverfetch, 3))
}

func TestIsExactMatch(t *testing.T) {
	tests := []struct {
		query, name string
		want        bool
	}{
		{"video editor", "Video Editor", true},
		{"video-editor", "video editor", true},
		{"  VIDEO EDITOR ", "video-editor", true},
		{"-video editor", "video editor", false},
		{"video editor-", "video editor", false},
		{"video", "video editor", false},
		{"", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsExactMatch(tt.query, tt.name), "%q vs %q", tt.query, tt.name)
	}
}

func TestValidateRequest(t *testing.T) {
	bad := 1.5
	tests := []struct {
		name string
		req  Request
	}{
		{"empty query", Request{Query: "  ", K: 5}},
		{"zero k", Request{Query: "video", K: 0}},
		{"k too large", Request{Query: "video", K: MaxK + 1}},
		{"unknown engine", Request{Query: "video", K: 5, Engine: "bm25"}},
		{"hybrid weight out of range", Request{Query: "video", K: 5, HybridWeight: &bad}},
		{"negative field weight", Request{Query: "video", K: 5, FieldWeights: map[string]float64{"name": -1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateRequest(&tt.req)
			assert.ErrorIs(t, err, types.ErrInvalidRequest)
		})
	}

	req := Request{Query: " video ", K: 5, Engine: "tfidf"}
	engine, err := validateRequest(&req)
	require.NoError(t, err)
	assert.Equal(t, EngineSparse, engine)
	assert.Equal(t, "video", req.Query)
}

func TestSearch_NotBuilt(t *testing.T) {
	s := NewSearcher(staticSource{}, nil, nil)
	_, err := s.Search(context.Background(), Request{Query: "video", K: 5})
	assert.ErrorIs(t, err, types.ErrIndexNotBuilt)
}

func TestSearch_SparseRoundTrip(t *testing.T) {
	snap, _, _ := buildSnapshot(t, videoCorpus(), nil)
	s := NewSearcher(staticSource{snap}, nil, nil)

	resp, err := s.Search(context.Background(), Request{Query: "video editor", K: 5, Engine: "sparse"})
	require.NoError(t, err)

	assert.Equal(t, EngineSparse, resp.EngineUsed)
	assert.Nil(t, resp.HybridWeight)
	require.Len(t, resp.Results, 3)

	top := resp.Results[0]
	assert.Contains(t, []string{"A", "C"}, top.ID)
	assert.True(t, top.ExactMatch)
	assert.Equal(t, types.FieldName, top.TopField)
	assert.Len(t, top.MatchedFields, len(types.Fields))
	assert.Nil(t, top.EngineScores)

	var b types.SearchResult
	for _, r := range resp.Results {
		if r.ID == "B" {
			b = r
		}
	}
	assert.Greater(t, top.Score, b.Score)
	assert.False(t, b.ExactMatch)

	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
}

func TestSearch_AutoUsesSparseWithoutDense(t *testing.T) {
	snap, _, _ := buildSnapshot(t, videoCorpus(), nil)
	s := NewSearcher(staticSource{snap}, dense.NewBuilder(localEmbedder(t), nil), nil)

	resp, err := s.Search(context.Background(), Request{Query: "spreadsheet", K: 1})
	require.NoError(t, err)
	assert.Equal(t, EngineSparse, resp.EngineUsed)
	assert.Equal(t, []string{"B"}, resultIDs(resp.Results))

	_, err = s.Search(context.Background(), Request{Query: "spreadsheet", K: 1, Engine: "dense"})
	assert.ErrorIs(t, err, types.ErrEngineUnavailable)
}

func TestSearch_Filters(t *testing.T) {
	snap, _, _ := buildSnapshot(t, videoCorpus(), nil)
	s := NewSearcher(staticSource{snap}, nil, nil)
	yes := true
	no := false

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"tag subset", Filters{Tags: []string{"MEDIA"}}, []string{"A", "C"}},
		{"all tags required", Filters{Tags: []string{"media", "video"}}, []string{"A"}},
		{"owner", Filters{Owner: " acme "}, []string{"B", "C"}},
		{"requires internet", Filters{RequiresInternet: &yes}, []string{"C"}},
		{"offline media", Filters{Tags: []string{"media"}, RequiresInternet: &no}, []string{"A"}},
		{"nothing matches", Filters{Source: "elsewhere"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Search(context.Background(), Request{Query: "video editor tool", K: 10, Engine: "sparse", Filters: tt.filters})
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, resultIDs(resp.Results))
			for _, r := range resp.Results {
				doc, _, ok := snap.Document(r.ID)
				require.True(t, ok)
				assert.True(t, resp.Filters.Match(&doc))
			}
		})
	}
}

func TestSearch_Hybrid(t *testing.T) {
	snap, _, _ := buildSnapshot(t, videoCorpus(), localEmbedder(t))
	s := NewSearcher(staticSource{snap}, dense.NewBuilder(localEmbedder(t), nil), nil)

	weight := 0.4
	resp, err := s.Search(context.Background(), Request{Query: "video editor", K: 2, Engine: "hybrid", HybridWeight: &weight})
	require.NoError(t, err)

	assert.Equal(t, EngineHybrid, resp.EngineUsed)
	require.NotNil(t, resp.HybridWeight)
	assert.Equal(t, 0.4, *resp.HybridWeight)
	require.Len(t, resp.Results, 2)

	for _, r := range resp.Results {
		assert.Contains(t, r.EngineScores, types.EngineDense)
		assert.Contains(t, r.EngineScores, types.EngineSparse)
		assert.InDelta(t, EffectiveWeight(0.4, "video editor"), r.EngineScoreComponents["effective_weight"], 1e-9)
		assert.NotEqual(t, "B", r.ID)
	}

	resp, err = s.Search(context.Background(), Request{Query: "video editor", K: 2})
	require.NoError(t, err)
	assert.Equal(t, EngineDense, resp.EngineUsed)
	assert.Nil(t, resp.HybridWeight)
}

func TestSearch_ProviderMismatch(t *testing.T) {
	snap, _, _ := buildSnapshot(t, videoCorpus(), localEmbedder(t))
	s := NewSearcher(staticSource{snap}, dense.NewBuilder(&fixedEmbedder{vec: make([]float32, 32)}, nil), nil)

	_, err := s.Search(context.Background(), Request{Query: "video", K: 2, Engine: "dense"})
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)

	resp, err := s.Search(context.Background(), Request{Query: "video", K: 2})
	require.NoError(t, err)
	assert.Equal(t, EngineSparse, resp.EngineUsed)
}

// hybridFixture has five documents. The query vector is (1,0); document 4
// sits opposite it while being the only lexical match for "zebra".
func hybridFixture() *index.Snapshot {
	texts := []string{"alpha", "beta", "gamma", "delta", "zebra"}
	docs := make([]types.Document, len(texts))
	for i, text := range texts {
		docs[i] = types.Document{ID: text, Name: text}
	}
	vz := sparse.Fit(texts, sparse.DefaultOptions())
	return &index.Snapshot{
		Meta: &types.IndexMeta{
			AvailableEngines:    []string{types.EngineSparse, types.EngineDense, types.EngineHybrid},
			FieldWeights:        types.DefaultFieldWeights,
			HybridWeightDefault: types.DefaultHybridWeight,
			DenseProvider:       "fixed",
			DenseModel:          "fixed-v1",
		},
		Documents:  docs,
		Vectorizer: vz,
		Sparse:     vector.NewFlatIndex(vz.TransformAll(texts)),
		Dense: vector.NewFlatIndex([]vector.Dense{
			{1, 0}, {0.8, 0.6}, {0.6, 0.8}, {0, 1}, {-1, 0},
		}),
		LoadedAt: time.Now(),
	}
}

func TestHybridSearch_MissingEngineScoresZero(t *testing.T) {
	snap := hybridFixture()
	s := NewSearcher(staticSource{snap}, dense.NewBuilder(&fixedEmbedder{vec: []float32{1, 0}}, nil), nil)

	q := &query{text: "zebra", k: 1, engine: EngineHybrid, hybridWeight: 0.7, weights: types.DefaultFieldWeights}
	q.sparse = snap.Vectorizer.Transform(q.text)
	q.hasSparse = true

	candidates, err := s.hybridSearch(context.Background(), snap, q)
	require.NoError(t, err)
	require.Len(t, candidates, 5)

	byPos := make(map[int]candidate)
	for _, c := range candidates {
		byPos[c.position] = c
	}

	// position 4 is outside the dense top 4
	zebra := byPos[4]
	assert.Equal(t, 0.0, zebra.scores[types.EngineDense])
	assert.Greater(t, zebra.scores[types.EngineSparse], 0.0)
	assert.InDelta(t, 1.0, zebra.components[types.EngineSparse], 1e-9)

	// position 3 is outside the sparse top 4
	delta := byPos[3]
	assert.Equal(t, 0.0, delta.scores[types.EngineSparse])
	assert.Equal(t, 0.0, delta.components[types.EngineSparse])

	alpha := byPos[0]
	assert.InDelta(t, 1.0, alpha.components[types.EngineDense], 1e-9)

	eff := EffectiveWeight(0.7, "zebra")
	for _, c := range candidates {
		want := eff*c.components[types.EngineDense] + (1-eff)*c.components[types.EngineSparse]
		assert.InDelta(t, want, c.score, 1e-9)
	}
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].score, candidates[i].score)
	}
}

func TestSearch_DenseFailureFallsBackInAuto(t *testing.T) {
	snap := hybridFixture()
	emb := &fixedEmbedder{vec: []float32{1, 0}, err: errors.New("timeout")}
	s := NewSearcher(staticSource{snap}, dense.NewBuilder(emb, nil), nil)

	resp, err := s.Search(context.Background(), Request{Query: "zebra", K: 1})
	require.NoError(t, err)
	assert.Equal(t, EngineSparse, resp.EngineUsed)
	assert.Equal(t, []string{"zebra"}, resultIDs(resp.Results))

	_, err = s.Search(context.Background(), Request{Query: "zebra", K: 1, Engine: "hybrid"})
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
}

func TestSearchWithCache_SkipsFallbackResponses(t *testing.T) {
	ctx := context.Background()
	emb := &fixedEmbedder{vec: []float32{1, 0}, err: errors.New("timeout")}
	s := NewSearcher(staticSource{hybridFixture()}, dense.NewBuilder(emb, nil), nil)
	req := Request{Query: "zebra", K: 1, UseCache: true}

	degraded, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, EngineSparse, degraded.EngineUsed)

	emb.err = nil
	recovered, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, recovered.CacheHit)
	assert.Equal(t, EngineDense, recovered.EngineUsed)

	cached, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, cached.CacheHit)
	assert.Equal(t, EngineDense, cached.EngineUsed)
}

func TestSearch_RetrievesAppendedDocument(t *testing.T) {
	ctx := context.Background()
	_, store, idx := buildSnapshot(t, videoCorpus(), nil)

	docs := append(videoCorpus(), types.Document{ID: "D", Name: "spreadsheet editor", Description: "record audio"})
	result, err := idx.Update(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, indexer.ActionAppend, result.Action)

	snap, err := index.Load(ctx, store, nil)
	require.NoError(t, err)
	s := NewSearcher(staticSource{snap}, nil, nil)

	resp, err := s.Search(ctx, Request{Query: "spreadsheet editor", K: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "D", resp.Results[0].ID)
	assert.True(t, resp.Results[0].ExactMatch)
}

func TestSearch_Snippet(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'é'
	}
	docs := []types.Document{
		{ID: "A", Name: "video editor", Description: string(long)},
		{ID: "B", Name: "spreadsheet", Description: "tables"},
	}
	snap, _, _ := buildSnapshot(t, docs, nil)
	s := NewSearcher(staticSource{snap}, nil, nil)

	resp, err := s.Search(context.Background(), Request{Query: "video", K: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "video editor", resp.Results[0].Snippet)

	assert.Len(t, []rune(truncate(string(long), SnippetLength)), SnippetLength)
	tf, snip := snippet(&docs[0], nil)
	assert.Empty(t, tf)
	assert.Len(t, []rune(snip), SnippetLength)
}

func TestSnippet_UsesRawField(t *testing.T) {
	doc := types.Document{
		ID:                   "A",
		Name:                 "video editor",
		NameSecondary:        "视频编辑",
		Description:          "cut clips",
		DescriptionSecondary: "剪辑",
	}

	tf, snip := snippet(&doc, []types.FieldScore{
		{Field: types.FieldName, Score: 0.9},
		{Field: types.FieldDescription, Score: 0.2},
	})
	assert.Equal(t, types.FieldName, tf)
	assert.Equal(t, "video editor", snip)

	tf, snip = snippet(&doc, []types.FieldScore{{Field: types.FieldDescription, Score: 0.4}})
	assert.Equal(t, types.FieldDescription, tf)
	assert.Equal(t, "cut clips", snip)
}

func TestFieldBonus(t *testing.T) {
	scores := []types.FieldScore{
		{Field: types.FieldName, Score: 1},
		{Field: types.FieldDescription, Score: 0.5},
	}
	weights := map[string]float64{types.FieldName: 0.6, types.FieldDescription: 0.4, types.FieldExcerpt: 0}
	assert.InDelta(t, FieldBonusScale*(0.6+0.2), fieldBonus(scores, weights), 1e-9)
	assert.Equal(t, 0.0, fieldBonus(nil, weights))
}

func TestSearchWithCache(t *testing.T) {
	snap, _, _ := buildSnapshot(t, videoCorpus(), nil)
	s := NewSearcher(staticSource{snap}, nil, &Config{CacheTTL: time.Minute})
	ctx := context.Background()
	req := Request{Query: "video editor", K: 2, UseCache: true}

	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, resultIDs(first.Results), resultIDs(second.Results))

	// cached copies are independent
	second.Results[0].MatchedFields[0].Score = -1
	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, -1.0, third.Results[0].MatchedFields[0].Score)

	other := req
	other.Filters = Filters{Owner: "acme"}
	resp, err := s.Search(ctx, other)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)

	s.InvalidateCache()
	resp, err = s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestCheckCache_Expired(t *testing.T) {
	s := NewSearcher(staticSource{}, nil, nil)
	key := [32]byte{1}
	s.cacheMu.Lock()
	s.cache.Add(key, &cacheEntry{response: &Response{Query: "old"}, expiresAt: time.Now().Add(-time.Second)})
	s.cacheMu.Unlock()

	assert.Nil(t, s.checkCache(key))
	assert.Equal(t, 0, s.cache.Len())
}

func TestComputeQueryHash(t *testing.T) {
	snap := hybridFixture()
	snap.Meta.BuildID = "build-1"
	base := &query{text: "video", k: 5, engine: EngineSparse, hybridWeight: 0.7, weights: types.DefaultFieldWeights}

	same := *base
	assert.Equal(t, computeQueryHash(snap, base), computeQueryHash(snap, &same))

	changedK := *base
	changedK.k = 6
	assert.NotEqual(t, computeQueryHash(snap, base), computeQueryHash(snap, &changedK))

	yes := true
	filtered := *base
	filtered.filters = Filters{RequiresInternet: &yes}
	assert.NotEqual(t, computeQueryHash(snap, base), computeQueryHash(snap, &filtered))

	rebuilt := *snap
	rebuilt.Meta = &types.IndexMeta{BuildID: "build-2"}
	assert.NotEqual(t, computeQueryHash(snap, base), computeQueryHash(&rebuilt, base))
}
