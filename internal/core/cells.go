package core

// cells.go cleans the raw cell text that spreadsheets hand us: byte order
// marks, Windows-1252 exports, Excel formula wrappers and stray quotes.

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CleanCell trims whitespace, unwraps Excel ="..." formulas and strips
// one pair of wrapping quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(unquote(s))
}

// unquote removes one pair of matching quotes wrapping the whole value.
// Quotes inside a name ("Lipton Tea 'Yellow Label'") are part of it.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first == last && (first == '"' || first == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// normalizeHeader folds a header cell for alias lookup: lower case, inner
// whitespace collapsed, underscores treated as spaces.
func normalizeHeader(s string) string {
	s = strings.ToLower(CleanCell(s))
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

// stripBOM drops a leading UTF-8 byte order mark.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// toUTF8 returns data unchanged when it is valid UTF-8. Anything else is
// read as Windows-1252, which is what Excel writes for "CSV" on most
// desktops; every byte has a mapping there.
func toUTF8(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return data, nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}
	return out, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
