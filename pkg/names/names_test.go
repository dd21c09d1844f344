package names

import "testing"

func TestSequenceOrder(t *testing.T) {
	s := Default()
	var got []string
	for i := 0; i < 28; i++ {
		got = append(got, s.Next())
	}
	want := map[int]string{0: "a", 1: "b", 25: "z", 26: "aa", 27: "ab"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("name %d = %q, want %q", i, got[i], w)
		}
	}
}

func TestSequenceBoundaries(t *testing.T) {
	s := Default()
	var last string
	for i := 0; i < 26+26*26+1; i++ {
		last = s.Next()
		switch i {
		case 51:
			if last != "az" {
				t.Fatalf("name 51 = %q, want az", last)
			}
		case 52:
			if last != "ba" {
				t.Fatalf("name 52 = %q, want ba", last)
			}
		case 26 + 26*26 - 1:
			if last != "zz" {
				t.Fatalf("last two-letter name = %q, want zz", last)
			}
		}
	}
	if last != "aaa" {
		t.Fatalf("first three-letter name = %q, want aaa", last)
	}
}

func TestSequenceNeverRepeatsBeforeReset(t *testing.T) {
	s := Default()
	seen := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		n := s.Next()
		if seen[n] {
			t.Fatalf("name %q repeated at step %d", n, i)
		}
		seen[n] = true
	}
}

func TestSequenceReset(t *testing.T) {
	s := Default()
	first := s.Next()
	s.Next()
	s.Reset()
	if again := s.Next(); again != first {
		t.Fatalf("after Reset Next = %q, want %q", again, first)
	}
}

func TestAlphabetFactory(t *testing.T) {
	f, err := Alphabet("xy")
	if err != nil {
		t.Fatalf("Alphabet: %v", err)
	}
	it := f()
	var got []string
	for i := 0; i < 6; i++ {
		got = append(got, it.Next())
	}
	want := []string{"x", "y", "xx", "xy", "yx", "yy"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
	if f().Next() != "x" {
		t.Fatalf("factory did not return a fresh iterator")
	}
}

func TestAlphabetRejectsInvalid(t *testing.T) {
	for _, a := range []string{"ab1", "aa", "a-b"} {
		if _, err := Alphabet(a); err == nil {
			t.Fatalf("Alphabet(%q) succeeded, want error", a)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want Policy
	}{
		{"", Dense},
		{"dense", Dense},
		{"Consume", ConsumeOnSkip},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if err != nil {
			t.Fatalf("ParsePolicy(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParsePolicy("sparse"); err == nil {
		t.Fatalf("ParsePolicy(sparse) succeeded, want error")
	}
}
