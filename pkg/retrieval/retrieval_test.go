package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ternhq/tern/pkg/ai"
	"github.com/ternhq/tern/pkg/common"
	"github.com/ternhq/tern/pkg/store/memory"
)

var (
	embOn  = []float32{1, 0, 0}
	embOff = []float32{0, 1, 0}
)

// stubAIClient answers the structured-output calls the pipeline makes with
// canned responses, keyed by the output type. Embeddings resolve by input
// text with an optional default.
type stubAIClient struct {
	mu sync.Mutex

	mentions    []string
	mentionsErr error

	scope    ai.ScopeClassificationResponse
	scopeErr error

	subQuestions []string
	decomposeErr error

	embeddings       map[string][]float32
	defaultEmbedding []float32
	embeddingErr     error

	decomposeCalls int
}

func (s *stubAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", fmt.Errorf("unexpected free-form completion")
}

func (s *stubAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch v := out.(type) {
	case *ai.QueryEntitiesResponse:
		if s.mentionsErr != nil {
			return s.mentionsErr
		}
		v.Mentions = append([]string(nil), s.mentions...)
	case *ai.ScopeClassificationResponse:
		if s.scopeErr != nil {
			return s.scopeErr
		}
		*v = s.scope
	case *ai.DecompositionResponse:
		s.decomposeCalls++
		if s.decomposeErr != nil {
			return s.decomposeErr
		}
		v.SubQuestions = append([]string(nil), s.subQuestions...)
	default:
		return fmt.Errorf("unexpected structured output type %T", out)
	}
	return nil
}

func (s *stubAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingErr != nil {
		return nil, s.embeddingErr
	}
	if emb, ok := s.embeddings[string(input)]; ok {
		return emb, nil
	}
	if s.defaultEmbedding != nil {
		return s.defaultEmbedding, nil
	}
	return nil, fmt.Errorf("no embedding configured for %q", input)
}

func (s *stubAIClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	return nil
}

func (s *stubAIClient) ResetMetrics() {}

func (s *stubAIClient) GetMetrics() ai.ModelMetrics {
	return ai.ModelMetrics{}
}

func (s *stubAIClient) DecomposeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decomposeCalls
}

func namedNode(id, name string, aliases ...string) common.Node {
	return common.Node{ID: id, Name: name, Aliases: aliases}
}

func section(id, docID string, emb []float32) common.Section {
	return common.Section{ID: id, Title: id, Path: "/" + id, DocumentID: docID, Embedding: emb}
}

func newTestClient(stub *stubAIClient, mem *memory.MemoryStorage, opts ...RetrievalOption) *GraphRetrievalClient {
	base := []RetrievalOption{
		WithTokenCounter(func(text string) int { return len(text) }),
	}
	return NewGraphRetrievalClient(stub, mem, append(base, opts...)...)
}

func chunkIDs(bundle *EvidenceBundle) []string {
	ids := make([]string, len(bundle.Chunks))
	for i, c := range bundle.Chunks {
		ids[i] = c.ID
	}
	return ids
}

func chunkDocuments(bundle *EvidenceBundle) map[string]bool {
	docs := map[string]bool{}
	for _, c := range bundle.Chunks {
		docs[c.DocumentID] = true
	}
	return docs
}

func TestQuery_EntityLookup(t *testing.T) {
	mem := memory.NewMemoryStorage()
	mem.AddNodes("g",
		namedNode("alice", "Alice Chen", "A. Chen"),
		namedNode("bob", "Bob Okafor"),
	)
	mem.AddEdges("g",
		common.Edge{SourceID: "alice", TargetID: "bob", Type: "knows", Weight: 1},
		common.Edge{SourceID: "bob", TargetID: "alice", Type: "knows", Weight: 1},
	)
	mem.AddSections("g", section("s1", "d1", embOff))
	mem.AddPassages("g",
		passage("p-alice", "d1", "s1", 1, "Alice Chen reported the issue.", "alice"),
		passage("p-bob", "d1", "s1", 2, "Bob Okafor confirmed the fix.", "bob"),
	)

	stub := &stubAIClient{
		mentions:         []string{"Alice Chen", "Bob Okafor"},
		defaultEmbedding: embOn,
	}
	trace := NewQueryTrace()
	client := newTestClient(stub, mem, WithTracer(trace))

	bundle, err := client.Query(context.Background(), Request{
		Query:   "What did Alice Chen tell Bob Okafor?",
		GroupID: "g",
		Mode:    ModeSingleHop,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	counts := bundle.Metadata.TierSeedCounts
	if counts.Entity != 2 || counts.Structural != 0 || counts.Thematic != 0 {
		t.Fatalf("tier seed counts = %+v, want exactly 2 entity seeds", counts)
	}
	if bundle.Metadata.WeightProfileUsed != ProfileNameDefault {
		t.Fatalf("profile = %s, want default", bundle.Metadata.WeightProfileUsed)
	}
	if bundle.Metadata.ReDecomposed {
		t.Fatal("single-hop query reported a re-decomposition")
	}

	if len(bundle.Chunks) != 2 {
		t.Fatalf("chunks = %v, want both entity passages", chunkIDs(bundle))
	}
	if len(bundle.Entities) != 2 {
		t.Fatalf("entities = %v, want alice and bob", bundle.Entities)
	}
	top := bundle.Entities[0].ID
	if top != "alice" && top != "bob" {
		t.Fatalf("top entity = %s, want one of the queried entities", top)
	}
	if bundle.Entities[0].Name == "" {
		t.Fatal("entity names were not resolved")
	}
	if !almostEqual(bundle.Metadata.ConfidenceScore, 1.0) {
		t.Fatalf("confidence = %v, want 1.0 for a focused single result", bundle.Metadata.ConfidenceScore)
	}

	snap := trace.Snapshot()
	if len(snap.SeedNodeIDs) != 2 {
		t.Fatalf("trace seeds = %v, want alice and bob", snap.SeedNodeIDs)
	}
	if len(snap.UsedPassageIDs) != 2 {
		t.Fatalf("trace used passages = %v, want both", snap.UsedPassageIDs)
	}
}

func TestQuery_ComparativeMultiDocumentRelaxesPenalty(t *testing.T) {
	mem := memory.NewMemoryStorage()
	mem.AddNodes("g",
		namedNode("na", "Acme Policy"),
		namedNode("nb", "Globex Policy"),
		namedNode("nc", "Initech Policy"),
	)
	mem.AddSections("g",
		section("s-a", "d1", embOff),
		section("s-b", "d2", embOff),
		section("s-c", "d3", embOff),
	)
	mem.AddPassages("g",
		passage("pa", "d1", "s-a", 1, "Acme forbids it.", "na"),
		passage("pb", "d2", "s-b", 1, "Globex allows it.", "nb"),
		passage("pc", "d3", "s-c", 1, "Initech never mentions it.", "nc"),
	)

	stub := &stubAIClient{
		scope: ai.ScopeClassificationResponse{
			SectionIDs:    []string{"s-a", "s-b", "s-c"},
			MultiDocument: true,
			Comparison:    true,
		},
		defaultEmbedding: embOn,
	}
	// A sharpening this aggressive would leave a single document's
	// evidence if it ran; the multi-document scope must disable it.
	client := newTestClient(stub, mem, WithClusterPenalty(1, 0))

	bundle, err := client.Query(context.Background(), Request{
		Query:   "Compare the safety policies of Acme and Globex",
		GroupID: "g",
		Mode:    ModeSingleHop,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if bundle.Metadata.WeightProfileUsed != ProfileNameThematic {
		t.Fatalf("profile = %s, want thematic for comparative phrasing", bundle.Metadata.WeightProfileUsed)
	}
	docs := chunkDocuments(bundle)
	if len(docs) != 3 {
		t.Fatalf("evidence covers %v, want all three documents", docs)
	}
	if bundle.Metadata.TierSeedCounts.Structural != 3 {
		t.Fatalf("structural seeds = %d, want 3", bundle.Metadata.TierSeedCounts.Structural)
	}
}

func TestQuery_ClusterPenaltySharpensSingleDocument(t *testing.T) {
	mem := memory.NewMemoryStorage()
	mem.AddNodes("g",
		common.Node{ID: "na", Name: "Acme Policy", ClusterID: "cluster-a"},
		common.Node{ID: "nb", Name: "Globex Policy", ClusterID: "cluster-b"},
	)
	mem.AddEdges("g",
		common.Edge{SourceID: "na", TargetID: "nb", Type: "related_to", Weight: 1},
		common.Edge{SourceID: "nb", TargetID: "na", Type: "related_to", Weight: 1},
	)
	mem.AddSections("g", section("s1", "d1", embOff))
	mem.AddPassages("g",
		passage("pa", "d1", "s1", 1, "Acme forbids it.", "na"),
		passage("pb", "d1", "s1", 2, "Globex allows it.", "nb"),
	)

	stub := &stubAIClient{
		mentions:         []string{"Acme Policy"},
		defaultEmbedding: embOn,
	}
	client := newTestClient(stub, mem, WithClusterPenalty(1, 0))

	bundle, err := client.Query(context.Background(), Request{
		Query:   "What does the Acme Policy say about storage?",
		GroupID: "g",
		Mode:    ModeSingleHop,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	got := chunkIDs(bundle)
	if len(got) != 1 || got[0] != "pa" {
		t.Fatalf("chunks = %v, want only the seeded cluster's passage pa", got)
	}
	for _, e := range bundle.Entities {
		if e.ID == "nb" {
			t.Fatalf("penalized node nb survived pruning: %v", bundle.Entities)
		}
	}
}

func TestQuery_SingleFactEvidenceIsBounded(t *testing.T) {
	mem := memory.NewMemoryStorage()
	mem.AddNodes("g", namedNode("n1", "Nimbus Reactor"))
	mem.AddSections("g", section("s1", "d1", embOff), section("s2", "d1", embOff))

	for i := 1; i <= 4; i++ {
		mem.AddPassages("g", passage(fmt.Sprintf("p%d", i), "d1", "s1", i, "about the reactor", "n1"))
	}
	for i := 5; i <= 8; i++ {
		mem.AddPassages("g", passage(fmt.Sprintf("p%d", i), "d1", "s2", i, "more about the reactor", "n1"))
	}

	stub := &stubAIClient{
		mentions:         []string{"Nimbus Reactor"},
		defaultEmbedding: embOn,
	}
	client := newTestClient(stub, mem)

	bundle, err := client.Query(context.Background(), Request{
		Query:   "When was the Nimbus Reactor commissioned?",
		GroupID: "g",
		Mode:    ModeSingleHop,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if len(bundle.Chunks) == 0 || len(bundle.Chunks) > defaultMaxNodeCap {
		t.Fatalf("got %d chunks, want between 1 and %d", len(bundle.Chunks), defaultMaxNodeCap)
	}
	perSection := map[string]int{}
	for _, c := range bundle.Chunks {
		if c.DocumentID != "d1" {
			t.Fatalf("chunk %s cites document %s, want d1", c.ID, c.DocumentID)
		}
		perSection[c.SectionID]++
	}
	if perSection["s1"] > defaultSectionCap {
		t.Fatalf("section s1 holds %d chunks, cap is %d", perSection["s1"], defaultSectionCap)
	}
}

func TestQuery_SharedPassageAppearsOnce(t *testing.T) {
	mem := memory.NewMemoryStorage()
	mem.AddNodes("g",
		namedNode("n1", "Alpha"),
		namedNode("n2", "Beta"),
		namedNode("n3", "Gamma"),
	)
	mem.AddSections("g", section("s1", "d1", embOff))
	mem.AddPassages("g",
		passage("hub", "d1", "s1", 1, "Alpha, Beta and Gamma met.", "n1", "n2", "n3"),
		passage("own1", "d1", "s1", 2, "Alpha alone.", "n1"),
		passage("own2", "d1", "s1", 3, "Beta alone.", "n2"),
		passage("own3", "d1", "s1", 4, "Gamma alone.", "n3"),
	)

	stub := &stubAIClient{
		mentions:         []string{"Alpha", "Beta", "Gamma"},
		defaultEmbedding: embOn,
	}
	client := newTestClient(stub, mem)

	bundle, err := client.Query(context.Background(), Request{
		Query:   "What happened when Alpha, Beta and Gamma met?",
		GroupID: "g",
		Mode:    ModeSingleHop,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	occurrences := map[string]int{}
	for _, c := range bundle.Chunks {
		occurrences[c.ID]++
	}
	if occurrences["hub"] != 1 {
		t.Fatalf("shared passage cited %d times, want exactly once (%v)", occurrences["hub"], chunkIDs(bundle))
	}
	for id, n := range occurrences {
		if n > 1 {
			t.Fatalf("chunk %s duplicated %d times", id, n)
		}
	}
}

func TestQuery_CancelledContextReturnsNoBundle(t *testing.T) {
	mem := memory.NewMemoryStorage()
	mem.AddNodes("g", namedNode("n1", "Alpha"))
	mem.AddPassages("g", passage("p1", "d1", "s1", 1, "Alpha.", "n1"))

	stub := &stubAIClient{
		mentions:         []string{"Alpha"},
		defaultEmbedding: embOn,
	}
	client := newTestClient(stub, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bundle, err := client.Query(ctx, Request{Query: "Alpha?", GroupID: "g"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if bundle != nil {
		t.Fatalf("cancelled query returned a bundle: %+v", bundle)
	}
}

func TestQuery_AllServicesExhausted(t *testing.T) {
	errDown := errors.New("model backend unavailable")

	mem := memory.NewMemoryStorage()
	mem.AddNodes("g", namedNode("n1", "Alpha"))
	mem.AddSections("g", section("s1", "d1", embOff))
	mem.AddPassages("g", passage("p1", "d1", "s1", 1, "Alpha.", "n1"))

	stub := &stubAIClient{
		mentionsErr:  errDown,
		scopeErr:     errDown,
		embeddingErr: errDown,
	}
	client := newTestClient(stub, mem)

	bundle, err := client.Query(context.Background(), Request{Query: "Alpha?", GroupID: "g"})
	if !errors.Is(err, ErrServicesExhausted) {
		t.Fatalf("err = %v, want ErrServicesExhausted", err)
	}
	if bundle != nil {
		t.Fatalf("exhausted query returned a bundle: %+v", bundle)
	}
}

func TestQuery_DegradedTierStillAnswers(t *testing.T) {
	// Entity extraction is down but embeddings work: the thematic tier
	// must carry the query alone.
	mem := memory.NewMemoryStorage()
	mem.AddNodes("g", namedNode("n1", "Alpha"))
	mem.AddPassages("g", common.Passage{
		ID: "p1", Text: "Alpha.", DocumentID: "d1", SectionID: "s1",
		Ordinal: 1, NodeIDs: []string{"n1"}, Embedding: embOn,
	})

	stub := &stubAIClient{
		mentionsErr:      errors.New("ner backend unavailable"),
		defaultEmbedding: embOn,
	}
	client := newTestClient(stub, mem)

	bundle, err := client.Query(context.Background(), Request{Query: "Tell me about Alpha", GroupID: "g"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(bundle.Chunks) != 1 || bundle.Chunks[0].ID != "p1" {
		t.Fatalf("chunks = %v, want the thematic match p1", chunkIDs(bundle))
	}
	counts := bundle.Metadata.TierSeedCounts
	if counts.Entity != 0 || counts.Thematic != 1 {
		t.Fatalf("tier seed counts = %+v, want thematic-only seeding", counts)
	}
}

func TestQuery_NoEvidenceIsNotAnError(t *testing.T) {
	mem := memory.NewMemoryStorage()

	stub := &stubAIClient{
		mentions:         []string{},
		defaultEmbedding: embOn,
	}
	client := newTestClient(stub, mem)

	bundle, err := client.Query(context.Background(), Request{Query: "Anything at all?", GroupID: "g"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(bundle.Chunks) != 0 || len(bundle.Entities) != 0 {
		t.Fatalf("empty graph produced evidence: %+v", bundle)
	}
	if bundle.Metadata.ConfidenceScore != 0 {
		t.Fatalf("confidence = %v, want 0 without evidence", bundle.Metadata.ConfidenceScore)
	}
}

func TestQuery_UniformFallbackSeed(t *testing.T) {
	mem := memory.NewMemoryStorage()
	mem.AddNodes("g", namedNode("n1", "Alpha"), namedNode("n2", "Beta"))
	mem.AddEdges("g", common.Edge{SourceID: "n1", TargetID: "n2", Type: "related_to", Weight: 1})
	mem.AddPassages("g",
		passage("p1", "d1", "s1", 1, "Alpha.", "n1"),
		passage("p2", "d1", "s1", 2, "Beta.", "n2"),
	)

	stub := &stubAIClient{
		mentions:         []string{},
		defaultEmbedding: embOn,
	}
	client := newTestClient(stub, mem, WithUniformFallbackSeed(true))

	bundle, err := client.Query(context.Background(), Request{Query: "Anything at all?", GroupID: "g"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(bundle.Chunks) == 0 {
		t.Fatal("uniform fallback produced no evidence")
	}
	counts := bundle.Metadata.TierSeedCounts
	if counts.Entity != 0 || counts.Structural != 0 || counts.Thematic != 0 {
		t.Fatalf("fallback ranking must not report tier seeds, got %+v", counts)
	}
}

func TestQuery_InputValidation(t *testing.T) {
	client := newTestClient(&stubAIClient{}, memory.NewMemoryStorage())

	tests := []struct {
		name string
		req  Request
	}{
		{"empty query", Request{Query: "  ", GroupID: "g"}},
		{"empty group", Request{Query: "q", GroupID: ""}},
		{"unknown mode", Request{Query: "q", GroupID: "g", Mode: "graph_walk"}},
		{"unknown profile", Request{Query: "q", GroupID: "g", WeightProfile: "sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.Query(context.Background(), tt.req); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestQuery_ExplicitProfileOverridesSelection(t *testing.T) {
	mem := memory.NewMemoryStorage()
	mem.AddNodes("g", namedNode("n1", "Alpha"))
	mem.AddPassages("g", passage("p1", "d1", "s1", 1, "Alpha.", "n1"))

	stub := &stubAIClient{
		mentions:         []string{"Alpha"},
		defaultEmbedding: embOn,
	}
	client := newTestClient(stub, mem)

	bundle, err := client.Query(context.Background(), Request{
		Query:         "Compare Alpha against everything",
		GroupID:       "g",
		WeightProfile: ProfileNameEntity,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if bundle.Metadata.WeightProfileUsed != ProfileNameEntity {
		t.Fatalf("profile = %s, want the explicitly requested entity profile", bundle.Metadata.WeightProfileUsed)
	}
}
