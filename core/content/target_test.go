package content

import "testing"

func TestParseTarget(t *testing.T) {
	tests := []struct {
		loc     string
		want    Target
		wantStr string
	}{
		{"GEN 1:1", Target{Book: "GEN", Chapter: 1, Verse: 1}, "GEN 1:1"},
		{"MAT 5:3-12", Target{Book: "MAT", Chapter: 5, Verse: 3, VerseEnd: 12}, "MAT 5:3-12"},
		{"1SA 2:3", Target{Book: "1SA", Chapter: 2, Verse: 3}, "1SA 2:3"},
		{"PSA 23", Target{Book: "PSA", Chapter: 23}, "PSA 23"},
		{"  jhn 3:16 ", Target{Book: "JHN", Chapter: 3, Verse: 16}, "JHN 3:16"},
	}

	for _, tt := range tests {
		t.Run(tt.loc, func(t *testing.T) {
			got, err := ParseTarget(tt.loc)
			if err != nil {
				t.Fatalf("ParseTarget(%q) failed: %v", tt.loc, err)
			}
			if *got != tt.want {
				t.Errorf("ParseTarget(%q) = %+v, want %+v", tt.loc, *got, tt.want)
			}
			if got.String() != tt.wantStr {
				t.Errorf("String() = %q, want %q", got.String(), tt.wantStr)
			}
		})
	}
}

func TestParseTargetInvalid(t *testing.T) {
	for _, loc := range []string{"", "   ", "GEN", "GEN one", ":1"} {
		if _, err := ParseTarget(loc); err == nil {
			t.Errorf("ParseTarget(%q) expected error", loc)
		}
	}
}
