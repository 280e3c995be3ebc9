package retrieval

import (
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventSeedNodeIDs          TraceEventKind = "seed_node_ids"
	TraceEventRankedNodeIDs        TraceEventKind = "ranked_node_ids"
	TraceEventConsideredSectionIDs TraceEventKind = "considered_section_ids"
	TraceEventUsedPassageIDs       TraceEventKind = "used_passage_ids"

	TraceEventStoreQuery TraceEventKind = "store_query"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	Tier       string
	NodeIDs    []string
	SectionIDs []string
	PassageIDs []string

	Op         string
	Rows       int
	DurationMs int64
	Error      string
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom
// post-processing pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordSeedNodeIDs(t Tracer, tier string, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventSeedNodeIDs, Tier: tier, NodeIDs: ids})
}

func RecordRankedNodeIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventRankedNodeIDs, NodeIDs: ids})
}

func RecordConsideredSectionIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventConsideredSectionIDs, SectionIDs: ids})
}

func RecordUsedPassageIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventUsedPassageIDs, PassageIDs: ids})
}

func RecordStoreQuery(t Tracer, op string, rows int, durationMs int64) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventStoreQuery, Op: op, Rows: rows, DurationMs: durationMs})
}

// QueryTrace collects information about what data was considered and/or
// used during a query run.
//
// This is primarily used to expose query metadata like seed nodes and
// used passages alongside the evidence bundle.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	seedNodeIDs          map[string]struct{}
	rankedNodeIDs        map[string]struct{}
	consideredSectionIDs map[string]struct{}
	usedPassageIDs       map[string]struct{}
	storeQueries         []StoreQueryStat
}

// StoreQueryStat is one recorded store round trip.
type StoreQueryStat struct {
	Op         string `json:"op"`
	Rows       int    `json:"rows"`
	DurationMs int64  `json:"duration_ms"`
}

type QueryTraceSnapshot struct {
	SeedNodeIDs          []string         `json:"seed_node_ids"`
	RankedNodeIDs        []string         `json:"ranked_node_ids"`
	ConsideredSectionIDs []string         `json:"considered_section_ids"`
	UsedPassageIDs       []string         `json:"used_passage_ids"`
	StoreQueries         []StoreQueryStat `json:"store_queries"`
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		seedNodeIDs:          make(map[string]struct{}),
		rankedNodeIDs:        make(map[string]struct{}),
		consideredSectionIDs: make(map[string]struct{}),
		usedPassageIDs:       make(map[string]struct{}),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventSeedNodeIDs:
		for _, id := range event.NodeIDs {
			if id == "" {
				continue
			}
			t.seedNodeIDs[id] = struct{}{}
		}
	case TraceEventRankedNodeIDs:
		for _, id := range event.NodeIDs {
			if id == "" {
				continue
			}
			t.rankedNodeIDs[id] = struct{}{}
		}
	case TraceEventConsideredSectionIDs:
		for _, id := range event.SectionIDs {
			if id == "" {
				continue
			}
			t.consideredSectionIDs[id] = struct{}{}
		}
	case TraceEventUsedPassageIDs:
		for _, id := range event.PassageIDs {
			if id == "" {
				continue
			}
			t.usedPassageIDs[id] = struct{}{}
		}
	case TraceEventStoreQuery:
		if event.Op == "" {
			return
		}
		t.storeQueries = append(t.storeQueries, StoreQueryStat{
			Op:         event.Op,
			Rows:       event.Rows,
			DurationMs: event.DurationMs,
		})
	default:
		return
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := QueryTraceSnapshot{
		SeedNodeIDs:          make([]string, 0, len(t.seedNodeIDs)),
		RankedNodeIDs:        make([]string, 0, len(t.rankedNodeIDs)),
		ConsideredSectionIDs: make([]string, 0, len(t.consideredSectionIDs)),
		UsedPassageIDs:       make([]string, 0, len(t.usedPassageIDs)),
		StoreQueries:         make([]StoreQueryStat, len(t.storeQueries)),
	}

	for id := range t.seedNodeIDs {
		s.SeedNodeIDs = append(s.SeedNodeIDs, id)
	}
	for id := range t.rankedNodeIDs {
		s.RankedNodeIDs = append(s.RankedNodeIDs, id)
	}
	for id := range t.consideredSectionIDs {
		s.ConsideredSectionIDs = append(s.ConsideredSectionIDs, id)
	}
	for id := range t.usedPassageIDs {
		s.UsedPassageIDs = append(s.UsedPassageIDs, id)
	}
	copy(s.StoreQueries, t.storeQueries)

	sort.Strings(s.SeedNodeIDs)
	sort.Strings(s.RankedNodeIDs)
	sort.Strings(s.ConsideredSectionIDs)
	sort.Strings(s.UsedPassageIDs)

	return s
}
