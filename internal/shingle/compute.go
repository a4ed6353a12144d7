package shingle

import (
	"hash/crc32"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/matejnovak/govsicrawl/pkg/hashutil"
)

// ExactHash returns the hex SHA-256 digest of html, used for exact
// duplicate detection (§4.3 step 1).
func ExactHash(html string) (string, error) {
	return hashutil.HashBytes([]byte(html), hashutil.HashAlgoSHA256)
}

// Compute strips markup from html and forms the shingle set over sliding
// windows of windowSize consecutive tokens, hashing each window with
// CRC-32.
func Compute(html string, windowSize int) (Set, error) {
	text, err := stripMarkup(html)
	if err != nil {
		return nil, err
	}

	tokens := strings.Fields(text)
	set := make(Set)
	if windowSize <= 0 || len(tokens) < windowSize {
		if len(tokens) > 0 {
			set[hashWindow(tokens)] = struct{}{}
		}
		return set, nil
	}

	for i := 0; i+windowSize <= len(tokens); i++ {
		set[hashWindow(tokens[i:i+windowSize])] = struct{}{}
	}
	return set, nil
}

func hashWindow(tokens []string) uint32 {
	window := strings.Join(tokens, " ")
	return crc32.ChecksumIEEE([]byte(window))
}

func stripMarkup(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	return doc.Text(), nil
}
