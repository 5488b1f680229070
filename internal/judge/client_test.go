package judge

import (
	"testing"
	"time"
)

func TestBackoffForDoublesUntilCap(t *testing.T) {
	base := time.Second
	max := 32 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{10, 32 * time.Second},
	}
	for _, c := range cases {
		if got := backoffFor(base, max, c.attempt); got != c.want {
			t.Errorf("backoffFor(attempt=%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestCategoryNamesCoversAllSixCategories(t *testing.T) {
	for id := 1; id <= 6; id++ {
		if _, ok := categoryNames[id]; !ok {
			t.Errorf("missing category name for id %d", id)
		}
	}
}
