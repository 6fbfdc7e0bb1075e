package testsupport

import "testing"

type point struct{ X, Y int }

func TestAssertEqual_PassesOnMatch(t *testing.T) {
	AssertEqual(t, point{1, 2}, point{1, 2}, "points should match")
}

func TestLogValue_DoesNotFail(t *testing.T) {
	LogValue(t, "a point", point{1, 2})
}
