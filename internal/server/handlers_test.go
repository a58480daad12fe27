package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shiori/internal/citegraph"
	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/groups"
	"github.com/hyperjump/shiori/internal/indexer"
	"github.com/hyperjump/shiori/internal/keyword"
	"github.com/hyperjump/shiori/internal/labeller"
	"github.com/hyperjump/shiori/internal/learning"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/scheduler"
	"github.com/hyperjump/shiori/internal/search"
	"github.com/hyperjump/shiori/internal/storage"
	"github.com/hyperjump/shiori/internal/storage/storagetest"
)

const testGroups = `
groups:
  k-ai-group:
    words: [ai, machine learning]
  urban:
    words: [walkability, plaza]
`

type testEnv struct {
	srv     *Server
	store   *storage.SQLiteStore
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storagetest.NewStore(t)
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "missing.db")

	snap, err := groups.Parse([]byte(testGroups))
	if err != nil {
		t.Fatal(err)
	}
	matcher := groups.NewStaticMatcher(snap)
	embedder := embedding.NewMockEmbedder(8)
	kw, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })

	engine := search.NewEngine(store, embedder, matcher, storage.NewEventLog(store, nil), &cfg.Search)
	srv := NewServer(Services{
		Engine:    engine,
		Indexer:   indexer.NewIndexer(store, embedder, kw),
		Lookup:    kw,
		Store:     store,
		Matcher:   matcher,
		Learner:   learning.NewLearner(&cfg.Learner),
		Labeller:  labeller.NewLabeller(&cfg.Labeller),
		Scheduler: scheduler.New(nil),
	}, cfg, nil)
	return &testEnv{srv: srv, store: store, handler: srv.Router()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func (e *testEnv) stats(t *testing.T) *storage.Stats {
	t.Helper()
	st, err := e.store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []models.PaperInput{
		{Title: "Walkability and street life", Year: 2019, DOI: "10.1/walk"},
		{Title: "Deep learning for vision", Year: 2021, DOI: "10.1/dl"},
	} {
		if w := env.do(t, http.MethodPost, "/api/v1/papers", p); w.Code != http.StatusCreated {
			t.Fatalf("index paper: got %d, body: %s", w.Code, w.Body.String())
		}
	}

	w := env.do(t, http.MethodPost, "/api/v1/search", map[string]any{"keywords": []string{"walkability"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	resp := decode[models.SearchResponse](t, w)
	if resp.QueryID == "" {
		t.Error("expected a query id")
	}
	if len(resp.Results) == 0 || resp.TotalCandidates != 2 {
		t.Errorf("results: got %d of %d", len(resp.Results), resp.TotalCandidates)
	}
	if _, ok := resp.ActivatedGroups["urban"]; !ok {
		t.Errorf("expected urban group activated, got %v", resp.ActivatedGroups)
	}
	if got := env.stats(t).Interactions; got != 1 {
		t.Errorf("query events logged: got %d, want 1", got)
	}
}

func TestHandleSearch_InvalidQuery(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body any
	}{
		{"no keywords", map[string]any{"keywords": []string{}}},
		{"blank keywords", map[string]any{"keywords": []string{"  "}}},
		{"inverted years", map[string]any{"keywords": []string{"ai"}, "year_from": 2020, "year_to": 2010}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/search", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d", w.Code)
			}
		})
	}
	if got := env.stats(t).Interactions; got != 0 {
		t.Errorf("rejected queries must not be logged, got %d", got)
	}
}

func TestHandleInteraction(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/interactions", map[string]any{
		"event_type": "click", "keywords": []string{"ai"}, "group_keys": []string{"k-ai-group"},
		"paper_id": 7, "rank": 2, "score": 0.83,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPost, "/api/v1/interactions", map[string]any{"event_type": "like"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown event type: got %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/v1/interactions", map[string]any{"event_type": "click", "rank": 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("rank 0: got %d", w.Code)
	}
	if got := env.stats(t).Interactions; got != 1 {
		t.Errorf("interactions: got %d, want 1", got)
	}

	storagetest.Read(t, env.store, func(ctx context.Context, tx storage.Tx) {
		logs, err := tx.ListInteractions(ctx, storage.InteractionFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(logs) != 1 {
			t.Fatalf("logged %d entries", len(logs))
		}
		e := logs[0]
		if e.PaperID == nil || *e.PaperID != 7 || e.Rank == nil || *e.Rank != 2 || e.Score == nil || *e.Score != 0.83 {
			t.Errorf("paper/rank/score not stored: %+v", e)
		}
	})
}

func TestHandleGraphLearnAndExpand(t *testing.T) {
	env := newTestEnv(t)
	storagetest.Seed(t, env.store, func(f *storagetest.Fixture) {
		f.Group("k-ai-group")
	})
	for i := 0; i < 10; i++ {
		w := env.do(t, http.MethodPost, "/api/v1/interactions", map[string]any{
			"event_type": "click", "keywords": []string{"ai", "neural nets"}, "group_keys": []string{"k-ai-group"},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("log click: %d", w.Code)
		}
	}

	w := env.do(t, http.MethodPost, "/api/v1/graph/learn", map[string]any{"window_minutes": 60})
	if w.Code != http.StatusOK {
		t.Fatalf("learn: got %d, body: %s", w.Code, w.Body.String())
	}
	res := decode[learning.Result](t, w)
	if res.Events != 10 || res.UpdatedEdges != 20 {
		t.Errorf("learn result: %+v", res)
	}

	w = env.do(t, http.MethodPost, "/api/v1/graph/expand", map[string]any{"keywords": []string{"ai"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expand: got %d, body: %s", w.Code, w.Body.String())
	}
	out := decode[struct {
		Expanded map[string]float64 `json:"expanded"`
	}](t, w)
	if _, ok := out.Expanded["ai"]; ok {
		t.Error("expansion must not return the input keyword")
	}
	if out.Expanded["neural nets"] <= 0 {
		t.Errorf("expected neural nets in expansion, got %v", out.Expanded)
	}
}

func TestHandleGraphExpand_RequiresKeywords(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/graph/expand", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleSyncGroups(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/graph/sync-groups", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	res := decode[learning.SyncResult](t, w)
	if res.Groups != 2 || res.CreatedGroups != 2 || res.CreatedEdges != 4 {
		t.Errorf("sync result: %+v", res)
	}

	w = env.do(t, http.MethodPost, "/api/v1/graph/sync-groups", nil)
	res = decode[learning.SyncResult](t, w)
	if res.CreatedGroups != 0 || res.CreatedEdges != 0 {
		t.Errorf("second sync should create nothing: %+v", res)
	}
}

func TestHandleGroupsReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	if err := os.WriteFile(path, []byte(testGroups), 0o644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t)
	env.srv.Matcher = groups.NewMatcher(path)
	env.handler = env.srv.Router()

	if err := os.WriteFile(path, []byte("groups:\n  solo:\n    words: [one]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := env.do(t, http.MethodPost, "/api/v1/groups/reload", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	out := decode[struct {
		Groups int `json:"groups"`
	}](t, w)
	if out.Groups != 1 {
		t.Errorf("groups after reload: got %d, want 1", out.Groups)
	}

	if err := os.WriteFile(path, []byte("groups: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	w = env.do(t, http.MethodPost, "/api/v1/groups/reload", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("broken file: got %d", w.Code)
	}
	if n := len(env.srv.Matcher.Snapshot().Groups); n != 1 {
		t.Errorf("previous snapshot should survive a failed reload, got %d groups", n)
	}
}

func TestHandlePaperLookup(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/papers", models.PaperInput{
		Title: "Pedestrian plazas", Abstract: "Public space and street vitality.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("index: %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/papers/lookup?q=vitality", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	out := decode[struct {
		Results []lookupResult `json:"results"`
	}](t, w)
	if len(out.Results) != 1 || out.Results[0].Paper.Title != "Pedestrian plazas" {
		t.Errorf("lookup results: %+v", out.Results)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/papers/lookup", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q: got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/papers/lookup?q=x&limit=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", w.Code)
	}
}

func TestHandleIndexPaper_Validation(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodPost, "/api/v1/papers", models.PaperInput{Abstract: "no title"}); w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
	body := models.PaperInput{Title: "Same", DOI: "10.9/same"}
	if w := env.do(t, http.MethodPost, "/api/v1/papers", body); w.Code != http.StatusCreated {
		t.Errorf("create: got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/papers", body); w.Code != http.StatusOK {
		t.Errorf("update: got %d", w.Code)
	}
}

func TestHandleCitations(t *testing.T) {
	env := newTestEnv(t)
	var a, b, c int64
	storagetest.Seed(t, env.store, func(f *storagetest.Fixture) {
		a = f.CitedPaper("a", 2018, 10)
		b = f.CitedPaper("b", 2019, 20)
		c = f.CitedPaper("c", 2020, 30)
	})

	for _, edge := range [][2]int64{{b, a}, {c, b}} {
		w := env.do(t, http.MethodPost, "/api/v1/citations", map[string]any{"citing_paper_id": edge[0], "cited_paper_id": edge[1]})
		if w.Code != http.StatusCreated {
			t.Fatalf("add citation: got %d, body: %s", w.Code, w.Body.String())
		}
	}
	w := env.do(t, http.MethodPost, "/api/v1/citations", map[string]any{"citing_paper_id": a, "cited_paper_id": a})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self citation: got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/citations/analyze", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("analyze: got %d, body: %s", w.Code, w.Body.String())
	}
	res := decode[labeller.Result](t, w)
	if res.GenerationTags != 3 {
		t.Errorf("generation tags: got %d, want 3", res.GenerationTags)
	}
}

func TestHandleEgoGraph(t *testing.T) {
	env := newTestEnv(t)
	var a, b, c int64
	storagetest.Seed(t, env.store, func(f *storagetest.Fixture) {
		a = f.Paper("foundation", 2015, nil)
		b = f.Paper("middle", 2018, nil)
		c = f.Paper("follow-up", 2021, nil)
		f.Cite(b, a)
		f.Cite(c, b)
	})

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/citations/ego-graph/%d?min_confidence=0.5", b), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ego graph: got %d, body: %s", w.Code, w.Body.String())
	}
	g := decode[citegraph.EgoGraph](t, w)
	if g.CenterPaperID != b || len(g.Nodes) != 3 || len(g.Edges) != 2 {
		t.Fatalf("graph = %+v", g)
	}
	if g.Stats.InDegree != 1 || g.Stats.OutDegree != 1 {
		t.Errorf("stats = %+v", g.Stats)
	}
	types := map[int64]string{}
	for _, n := range g.Nodes {
		types[n.ID] = n.Type
	}
	if types[b] != citegraph.NodeCentral || types[a] != citegraph.NodeCited || types[c] != citegraph.NodeCiting {
		t.Errorf("node types = %v", types)
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/citations/ego-graph/%d?limit=1", b), nil)
	if g := decode[citegraph.EgoGraph](t, w); len(g.Edges) != 1 || g.Edges[0].From != b {
		t.Errorf("limited graph = %+v", g)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/citations/ego-graph/999", http.StatusNotFound},
		{"/api/v1/citations/ego-graph/abc", http.StatusBadRequest},
		{fmt.Sprintf("/api/v1/citations/ego-graph/%d?min_confidence=2", b), http.StatusBadRequest},
		{fmt.Sprintf("/api/v1/citations/ego-graph/%d?limit=-1", b), http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := env.do(t, http.MethodGet, tt.path, nil); w.Code != tt.want {
			t.Errorf("GET %s: got %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t)
	storagetest.Seed(t, env.store, func(f *storagetest.Fixture) {
		f.Paper("embedded", 2020, []float32{1, 0})
		f.Paper("pending", 2020, nil)
	})
	w := env.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Stats          storage.Stats `json:"stats"`
		DiskUsageBytes *int64        `json:"disk_usage_bytes"`
		Groups         struct {
			Count int `json:"count"`
		} `json:"groups"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Stats.Papers != 2 || out.Stats.EmbeddedPapers != 1 {
		t.Errorf("stats: %+v", out.Stats)
	}
	if out.Groups.Count != 2 {
		t.Errorf("groups: got %d", out.Groups.Count)
	}
	if out.DiskUsageBytes == nil {
		t.Error("expected disk_usage_bytes")
	}
}

func TestRegisterJobs(t *testing.T) {
	env := newTestEnv(t)
	env.srv.config.Learner.Schedule = "@every 1h"
	env.srv.config.Labeller.Schedule = "0 3 * * *"
	if err := env.srv.registerJobs(); err != nil {
		t.Fatal(err)
	}
	jobs := env.srv.Scheduler.Status()
	if len(jobs) != 2 || jobs[0].Name != "label" || jobs[1].Name != "learn" {
		t.Fatalf("jobs: %+v", jobs)
	}
	if !env.srv.Scheduler.RunNow("learn") {
		t.Error("learn job did not run")
	}
	if st := env.srv.Scheduler.Status(); st[1].LastError != "" {
		t.Errorf("learn job failed: %s", st[1].LastError)
	}
}

func TestRegisterJobs_InvalidSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.srv.config.Learner.Schedule = "every hour"
	if err := env.srv.registerJobs(); err == nil {
		t.Error("expected invalid schedule error")
	}
}
