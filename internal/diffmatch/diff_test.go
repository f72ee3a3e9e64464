package diffmatch

import (
	"math/rand"
	"testing"
)

func apply(t *testing.T, src string, hunks []Hunk) string {
	t.Helper()
	r := []rune(src)
	var out []rune
	pos := 0
	for _, h := range hunks {
		switch h.Kind {
		case Retain:
			if pos+h.N > len(r) {
				t.Fatalf("retain(%d) overruns source at pos %d (len %d)", h.N, pos, len(r))
			}
			out = append(out, r[pos:pos+h.N]...)
			pos += h.N
		case Delete:
			if pos+h.N > len(r) {
				t.Fatalf("delete(%d) overruns source at pos %d (len %d)", h.N, pos, len(r))
			}
			pos += h.N
		case Insert:
			out = append(out, []rune(h.Text)...)
		}
	}
	if pos != len(r) {
		t.Fatalf("hunks left %d runes of source unconsumed", len(r)-pos)
	}
	return string(out)
}

func checkInvariants(t *testing.T, a, b string, hunks []Hunk) {
	t.Helper()
	la, lb := len([]rune(a)), len([]rune(b))
	var consumed, produced int
	for _, h := range hunks {
		switch h.Kind {
		case Retain:
			consumed += h.N
			produced += h.N
		case Delete:
			consumed += h.N
		case Insert:
			produced += len([]rune(h.Text))
		}
	}
	if consumed != la {
		t.Fatalf("retain+delete = %d, want len(a) = %d", consumed, la)
	}
	if produced != lb {
		t.Fatalf("retain+insert = %d, want len(b) = %d", produced, lb)
	}
	if got := apply(t, a, hunks); got != b {
		t.Fatalf("applying hunks to %q produced %q, want %q", a, got, b)
	}
}

func TestDiffIdentical(t *testing.T) {
	hunks := Diff("hello", "hello")
	checkInvariants(t, "hello", "hello", hunks)
	if len(hunks) > 1 {
		t.Fatalf("identical strings should collapse to one retain, got %v", hunks)
	}
}

func TestDiffEmptyToFull(t *testing.T) {
	hunks := Diff("", "abc")
	checkInvariants(t, "", "abc", hunks)
}

func TestDiffFullToEmpty(t *testing.T) {
	hunks := Diff("abc", "")
	checkInvariants(t, "abc", "", hunks)
}

func TestDiffMiddleEdit(t *testing.T) {
	a := "the quick brown fox"
	b := "the slow brown fox"
	hunks := Diff(a, b)
	checkInvariants(t, a, b, hunks)
}

func TestDiffAppendAndPrepend(t *testing.T) {
	cases := [][2]string{
		{"world", "hello world"},
		{"hello", "hello world"},
		{"abc", "xabcx"},
	}
	for _, c := range cases {
		hunks := Diff(c[0], c[1])
		checkInvariants(t, c[0], c[1], hunks)
	}
}

func TestDiffUnicode(t *testing.T) {
	a := "café 你好"
	b := "cafés 你们好"
	hunks := Diff(a, b)
	checkInvariants(t, a, b, hunks)
}

func TestDiffNoAdjacentSameKindHunks(t *testing.T) {
	hunks := Diff("abcdef", "axcyef")
	for i := 1; i < len(hunks); i++ {
		if hunks[i].Kind == hunks[i-1].Kind {
			t.Fatalf("adjacent hunks of the same kind were not merged: %v", hunks)
		}
	}
}

func TestDiffRandomPairsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	alphabet := []rune("abcxyz ")
	randStr := func(n int) string {
		r := make([]rune, n)
		for i := range r {
			r[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(r)
	}

	for i := 0; i < 200; i++ {
		a := randStr(rng.Intn(12))
		b := randStr(rng.Intn(12))
		hunks := Diff(a, b)
		checkInvariants(t, a, b, hunks)
	}
}
