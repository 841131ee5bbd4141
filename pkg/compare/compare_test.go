package compare

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/block/dbsentinel/pkg/rowhash"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func TestCompareAllEqual(t *testing.T) {
	src := rowhash.HashMap{"1": "aaa", "2": "bbb"}
	tgt := rowhash.HashMap{"1": "aaa", "2": "bbb"}
	d := Compare(src, tgt)
	assert.Empty(t, d.Mismatch)
	assert.Empty(t, d.MissingInTarget)
	assert.Empty(t, d.MissingInSource)
}

func TestCompareMismatch(t *testing.T) {
	src := rowhash.HashMap{"1": "aaa", "2": "bbb"}
	tgt := rowhash.HashMap{"1": "aaa", "2": "ccc"}
	d := Compare(src, tgt)
	assert.ElementsMatch(t, []string{"2"}, d.Mismatch)
	assert.Empty(t, d.MissingInTarget)
	assert.Empty(t, d.MissingInSource)
}

func TestCompareMissingInTarget(t *testing.T) {
	src := rowhash.HashMap{"1": "aaa", "2": "bbb"}
	tgt := rowhash.HashMap{"1": "aaa"}
	d := Compare(src, tgt)
	assert.ElementsMatch(t, []string{"2"}, d.MissingInTarget)
	assert.Empty(t, d.Mismatch)
	assert.Empty(t, d.MissingInSource)
}

func TestCompareMissingInSource(t *testing.T) {
	src := rowhash.HashMap{"1": "aaa"}
	tgt := rowhash.HashMap{"1": "aaa", "2": "bbb"}
	d := Compare(src, tgt)
	assert.ElementsMatch(t, []string{"2"}, d.MissingInSource)
	assert.Empty(t, d.Mismatch)
	assert.Empty(t, d.MissingInTarget)
}

func TestCompareDisjoint(t *testing.T) {
	src := rowhash.HashMap{"1": "aaa", "2": "bbb", "3": "ccc"}
	tgt := rowhash.HashMap{"1": "aaa", "2": "xyz", "4": "ddd"}
	d := Compare(src, tgt)

	seen := map[string]int{}
	for _, pk := range d.Mismatch {
		seen[pk]++
	}
	for _, pk := range d.MissingInTarget {
		seen[pk]++
	}
	for _, pk := range d.MissingInSource {
		seen[pk]++
	}
	for pk, count := range seen {
		assert.Equalf(t, 1, count, "pk %s appeared in more than one diff set", pk)
	}
}

func TestMerge(t *testing.T) {
	a := DiffSets{Mismatch: []string{"1"}, MissingInTarget: []string{"2"}}
	b := DiffSets{MissingInSource: []string{"3"}, Mismatch: []string{"4"}}
	merged := Merge(a, b)
	assert.ElementsMatch(t, []string{"1", "4"}, merged.Mismatch)
	assert.ElementsMatch(t, []string{"2"}, merged.MissingInTarget)
	assert.ElementsMatch(t, []string{"3"}, merged.MissingInSource)
}
