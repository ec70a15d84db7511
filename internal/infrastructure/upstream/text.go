package upstream

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Characters that show up when UTF-8 text was decoded as Latin-1/Windows-1252
var latin1NoiseRegex = regexp.MustCompile(`[ÃÂâ�]`)

// MacRoman mis-decoding turns the UTF-8 lead byte 0xC3 into a square root sign
const macRomanMarker = "√"

// repairMojibake undoes the two mis-decodings seen in supplier feeds.
// A repair is only kept when it makes the text measurably cleaner.
func repairMojibake(s string) string {
	current := s

	if latin1NoiseRegex.MatchString(current) {
		current = repairFromWindows1252(current)
	}
	if strings.Contains(current, macRomanMarker) {
		current = repairFromMacRoman(current)
	}

	return current
}

func repairFromWindows1252(s string) string {
	encoded, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil || !utf8.ValidString(encoded) {
		return s
	}

	before := len(latin1NoiseRegex.FindAllString(s, -1))
	after := len(latin1NoiseRegex.FindAllString(encoded, -1))
	if after < before {
		return encoded
	}
	return s
}

func repairFromMacRoman(s string) string {
	encoded, err := charmap.Macintosh.NewEncoder().String(s)
	if err != nil || !utf8.ValidString(encoded) {
		return s
	}
	if encoded == "" || encoded == s || strings.Contains(encoded, macRomanMarker) {
		return s
	}
	return encoded
}
