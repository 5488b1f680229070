package analyzer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"curator/internal/core"
)

type fakeJudge struct {
	mu          sync.Mutex
	inFlight    int32
	maxInFlight int32
	relevantIDs map[string]bool
}

func (f *fakeJudge) Judge(ctx context.Context, title, abstract string, bestCategoryID int, maxScore float64, hitCount int) (*core.L3Fields, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	if n > f.maxInFlight {
		f.maxInFlight = n
	}
	f.mu.Unlock()

	return &core.L3Fields{IsRelevant: f.relevantIDs[title], CategoryID: bestCategoryID}, nil
}

type fakeGateway struct {
	mu      sync.Mutex
	updated []string
}

func (g *fakeGateway) UpdateL3(ctx context.Context, arxivID string, f core.L3Fields) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updated = append(g.updated, arxivID)
	return nil
}

func paperWithL2(id string) core.Paper {
	return core.Paper{
		ArxivID:  id,
		Title:    id,
		Abstract: "abstract",
		L2:       &core.L2Fields{BestCategoryID: 4, MaxScore: 0.5, HitCount: 1},
	}
}

func TestRunFiltersToRelevantPapers(t *testing.T) {
	papers := []core.Paper{paperWithL2("a"), paperWithL2("b"), paperWithL2("c")}
	j := &fakeJudge{relevantIDs: map[string]bool{"a": true, "c": true}}
	g := &fakeGateway{}

	a := New(j, g, 2, 0)
	relevant, err := a.Run(context.Background(), papers)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(relevant) != 2 {
		t.Fatalf("expected 2 relevant papers, got %d", len(relevant))
	}
	if len(g.updated) != 3 {
		t.Fatalf("expected all 3 papers to be persisted, got %d", len(g.updated))
	}
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	papers := make([]core.Paper, 0, 10)
	for i := 0; i < 10; i++ {
		papers = append(papers, paperWithL2(string(rune('a'+i))))
	}
	j := &fakeJudge{relevantIDs: map[string]bool{}}
	g := &fakeGateway{}

	a := New(j, g, 3, 10*time.Millisecond)
	if _, err := a.Run(context.Background(), papers); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if j.maxInFlight > 3 {
		t.Errorf("observed %d concurrent judgement calls, want <= 3", j.maxInFlight)
	}
}

func TestRunEmptyInputReturnsNil(t *testing.T) {
	a := New(&fakeJudge{}, &fakeGateway{}, 5, 0)
	out, err := a.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil output for empty input, got %v", out)
	}
}
