package healthcheck

import (
	"context"
	"testing"
)

type testChecker struct {
	items []CheckResult
}

func (c *testChecker) ListChecks(ctx context.Context) []CheckResult {
	return c.items
}

func TestCollectReportsWorstStatus(t *testing.T) {
	t.Parallel()

	items, overall := Collect(context.Background(),
		&testChecker{items: []CheckResult{{ID: "line", Status: StatusOK}}},
		nil,
		&testChecker{items: []CheckResult{{ID: "onedrive", Status: StatusWarn}, {ID: "openai"}}},
	)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[2].Status != StatusUnknown {
		t.Fatalf("empty status should become unknown, got %q", items[2].Status)
	}
	if overall != StatusWarn {
		t.Fatalf("expected warn, got %s", overall)
	}

	_, overall = Collect(context.Background(), &testChecker{items: []CheckResult{{Status: StatusError}, {Status: StatusWarn}}})
	if overall != StatusError {
		t.Fatalf("expected error, got %s", overall)
	}
}

func TestCollectEmpty(t *testing.T) {
	t.Parallel()

	items, overall := Collect(context.Background())
	if len(items) != 0 || overall != StatusOK {
		t.Fatalf("unexpected result: %v %s", items, overall)
	}
}
