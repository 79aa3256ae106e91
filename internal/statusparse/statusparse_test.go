package statusparse

import "testing"

func TestParse_FixedCodeTable(t *testing.T) {
	cases := []struct {
		line string
		kind Kind
		path string
		dir  bool
	}{
		{"?? foo.ipynb", Untracked, "foo.ipynb", false},
		{"A  added.txt", Added, "added.txt", false},
		{"M  README.md", Modified, "README.md", false},
		{"D  gone.txt", Deleted, "gone.txt", false},
		{"R  old.txt -> new.txt", Renamed, "old.txt", false},
		{"C  src.txt -> copy.txt", Copied, "src.txt", false},
		{"T  typechanged", TypeChange, "typechanged", false},
		{"U  unmerged.txt", Updated, "unmerged.txt", false},
		{"?? subdir/", Untracked, "subdir", true},
	}

	for _, c := range cases {
		entries := Parse(c.line)
		if len(entries) != 1 {
			t.Fatalf("line %q: got %d entries, want 1", c.line, len(entries))
		}
		got := entries[0]
		if got.Kind != c.kind {
			t.Errorf("line %q: kind = %v, want %v", c.line, got.Kind, c.kind)
		}
		if got.Path != c.path {
			t.Errorf("line %q: path = %q, want %q", c.line, got.Path, c.path)
		}
		if got.IsDir != c.dir {
			t.Errorf("line %q: isDir = %v, want %v", c.line, got.IsDir, c.dir)
		}
	}
}

func TestParse_UnknownCodeIsSentinel(t *testing.T) {
	entries := Parse("XX broken_file")
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Kind != Unknown {
		t.Fatalf("kind = %v, want Unknown", entries[0].Kind)
	}
}

func TestParse_MultipleLinesAndBlankLinesSkipped(t *testing.T) {
	out := "?? a.txt\n\nM  b.txt\n"
	entries := Parse(out)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Path != "a.txt" || entries[1].Path != "b.txt" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
