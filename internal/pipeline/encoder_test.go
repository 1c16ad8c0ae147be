package pipeline

import "testing"

func TestAVIFEffortInvertsSpeed(t *testing.T) {
	cases := map[int]int{1: 9, 7: 3, 10: 0, 0: 9, 12: 0}
	for speed, want := range cases {
		if got := avifEffort(speed); got != want {
			t.Fatalf("avifEffort(%d) = %d, want %d", speed, got, want)
		}
	}
}
