package antispam

import (
	"regexp"
	"strings"

	"github.com/spaolacci/murmur3"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	urlRegex      = regexp.MustCompile(`(?:(?:https?|ftp):\/\/)?[\w/\-?=%.]+\.[\w/\-&?=%.]*[\w/\-&?=%]+`)
	mentionRegex  = regexp.MustCompile(`<@[!&]?[0-9]+>|@everyone|@here`)
	nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)
)

// fingerprint hashes content after folding case, width and punctuation so
// trivially varied copies collide.
func fingerprint(content string) uint64 {
	folded := cases.Fold().String(norm.NFKC.String(content))
	bare := strings.Join(strings.Fields(nonTokenChars.ReplaceAllString(folded, " ")), " ")
	if bare == "" {
		bare = strings.TrimSpace(folded)
	}
	return murmur3.Sum64([]byte(bare))
}

func countMentions(content string) int {
	return len(mentionRegex.FindAllStringIndex(content, -1))
}

func countLinks(content string) (links int, density float64) {
	links = len(urlRegex.FindAllStringIndex(content, -1))
	if links == 0 {
		return 0, 0
	}
	tokens := len(strings.Fields(content))
	if tokens < links {
		tokens = links
	}
	return links, float64(links) / float64(tokens)
}
