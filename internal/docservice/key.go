package docservice

import (
	"strconv"
	"unicode/utf16"
)

const maxKeyLength = 128

var keyAllowed = func() [128]bool {
	var allowed [128]bool
	for c := '0'; c <= '9'; c++ {
		allowed[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		allowed[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		allowed[c] = true
	}
	for _, c := range []byte{'.', '_', '-', '='} {
		allowed[c] = true
	}
	return allowed
}()

// NormalizeKey collapses an arbitrary revision identifier into the form the
// document server accepts: at most 128 characters from
// [0-9A-Za-z._=-]. Over-long inputs are replaced by their string hash first
// so the result stays stable for the same logical input.
func NormalizeKey(key string) string {
	if len(key) > maxKeyLength {
		key = strconv.Itoa(int(hashCode(key)))
	}
	out := make([]byte, 0, len(key))
	for _, r := range key {
		if r < 128 && keyAllowed[r] {
			out = append(out, byte(r))
		} else {
			out = append(out, '_')
		}
	}
	if len(out) > maxKeyLength {
		out = out[:maxKeyLength]
	}
	return string(out)
}

// hashCode computes the 31-multiplier rolling hash over UTF-16 code units,
// truncated to 32 bits.
func hashCode(s string) int32 {
	var ret int32
	for _, u := range utf16.Encode([]rune(s)) {
		ret = 31*ret + int32(u)
	}
	return ret
}
