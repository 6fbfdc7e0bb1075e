// Package testsupport holds small test-only assertion helpers shared
// across the store's packages, printing readable diffs via
// github.com/kr/pretty when a reconstructed page or layer-map snapshot
// does not match what a test expected.
package testsupport

import (
	"testing"

	"github.com/kr/pretty"
)

// AssertEqual fails the test with a field-by-field diff of got vs
// want when they are not deeply equal. Intended for structs too large
// to usefully compare with reflect.DeepEqual failure messages alone,
// such as a *historic.Descriptor slice or a reconstructed Image.
func AssertEqual(t *testing.T, got, want interface{}, msg string) {
	t.Helper()
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Fatalf("%s:\n%s", msg, pretty.Sprint(diff))
	}
}

// LogValue writes a pretty-printed form of v to the test log, useful
// for inspecting a snapshot while debugging a failure without
// asserting on it.
func LogValue(t *testing.T, label string, v interface{}) {
	t.Helper()
	t.Logf("%s:\n%s", label, pretty.Sprint(v))
}
