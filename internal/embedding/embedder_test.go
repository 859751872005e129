package embedding

import "testing"

func TestSnapDimension(t *testing.T) {
	cases := []struct {
		requested int
		want      int
	}{
		{0, 512},
		{512, 512},
		{600, 768},
		{768, 768},
		{1000, 1024},
		{1536, 1536},
		{2000, 3072},
		{3072, 3072},
		{5000, 3072},
	}
	for _, tc := range cases {
		if got := SnapDimension(tc.requested); got != tc.want {
			t.Fatalf("SnapDimension(%d) = %d, want %d", tc.requested, got, tc.want)
		}
	}
}
