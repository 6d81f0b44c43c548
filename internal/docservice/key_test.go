package docservice

import (
	"strings"
	"testing"
)

func TestNormalizeKeyPassesCleanInput(t *testing.T) {
	const key = "report.docx_10.0.0.1-2026=v3"
	if got := NormalizeKey(key); got != key {
		t.Fatalf("NormalizeKey = %q, want unchanged", got)
	}
}

func TestNormalizeKeyReplacesDisallowedRunes(t *testing.T) {
	if got := NormalizeKey("a b/c:d"); got != "a_b_c_d" {
		t.Fatalf("NormalizeKey = %q", got)
	}
	// One replacement per rune, not per byte.
	if got := NormalizeKey("ключ"); got != "____" {
		t.Fatalf("NormalizeKey = %q", got)
	}
}

func TestNormalizeKeyHashesOverlongInput(t *testing.T) {
	long := strings.Repeat("x", 200)
	got := NormalizeKey(long)
	if len(got) > 128 {
		t.Fatalf("len = %d", len(got))
	}
	if got == long[:128] {
		t.Fatal("overlong key was truncated instead of hashed")
	}
	if got != NormalizeKey(long) {
		t.Fatal("hashing is not stable")
	}
	if NormalizeKey(strings.Repeat("y", 200)) == got {
		t.Fatal("distinct overlong keys collided")
	}
}

func TestHashCodeMatchesUTF16Rolling(t *testing.T) {
	// 'a'=97, 'b'=98: 31*97+98 = 3105.
	if got := hashCode("ab"); got != 3105 {
		t.Fatalf("hashCode(ab) = %d", got)
	}
	if got := hashCode(""); got != 0 {
		t.Fatalf("hashCode(empty) = %d", got)
	}
}
