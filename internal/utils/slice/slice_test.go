package slice_test

import (
	"reflect"
	"testing"

	"github.com/enterstudio/subscription-manager/internal/utils/slice"
)

func TestContains(t *testing.T) {
	items := []string{"a", "b"}
	if !slice.Contains(items, "a") {
		t.Error("expected a to be found")
	}
	if slice.Contains(items, "c") {
		t.Error("did not expect c to be found")
	}
	if slice.Contains(nil, "a") {
		t.Error("nil slice contains nothing")
	}
}

func TestUnique(t *testing.T) {
	got := slice.Unique([]string{"a", "b", "a", "c", "b"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected result: %v", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := slice.SplitCSV(" a, b ,,c ")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected result: %v", got)
	}
	if len(slice.SplitCSV("")) != 0 {
		t.Error("empty input should yield no elements")
	}
}
