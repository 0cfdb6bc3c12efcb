package validation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultMinName  = 1
	defaultMaxName  = 100
	zeroWidthJoiner = '\u200d'
)

var (
	snowflake      = regexp.MustCompile(`^[0-9]{15,21}$`)
	channelMention = regexp.MustCompile(`^<#([0-9]{15,21})>$`)
	roleMention    = regexp.MustCompile(`^<@&([0-9]{15,21})>$`)
	userMention    = regexp.MustCompile(`^<@!?([0-9]{15,21})>$`)
)

// nameRune reports whether r may appear in a name. Mention syntax characters
// are excluded so a stored name cannot ping when echoed back.
func nameRune(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsNumber(r), unicode.IsMark(r), unicode.IsSymbol(r):
		return r != '<' && r != '>'
	case r == ' ', r == zeroWidthJoiner:
		return true
	}
	return strings.ContainsRune("-_.,'!?&()#:/+", r)
}

func normalizeName(f Field) (Value, *ValidationError) {
	s := norm.NFKC.String(f.Raw)
	for _, r := range s {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return Value{}, invalid(f.Name, "contains control character %U", r)
		}
		if unicode.Is(unicode.Cf, r) && r != zeroWidthJoiner {
			return Value{}, invalid(f.Name, "contains format character %U", r)
		}
	}
	s = strings.Join(strings.Fields(s), " ")

	minLen, maxLen := f.Constraints.MinLength, f.Constraints.MaxLength
	if minLen <= 0 {
		minLen = defaultMinName
	}
	if maxLen <= 0 {
		maxLen = defaultMaxName
	}
	if n := uniseg.GraphemeClusterCount(s); n < minLen || n > maxLen {
		return Value{}, invalid(f.Name, "length %d outside [%d, %d]", n, minLen, maxLen)
	}
	for _, r := range s {
		if !nameRune(r) {
			return Value{}, invalid(f.Name, "character %q not allowed", r)
		}
	}
	return Value{Text: s}, nil
}

func normalizeReference(f Field, mention *regexp.Regexp) (Value, *ValidationError) {
	s := strings.TrimSpace(f.Raw)
	if snowflake.MatchString(s) {
		return Value{Text: s}, nil
	}
	if m := mention.FindStringSubmatch(s); m != nil {
		return Value{Text: m[1]}, nil
	}
	return Value{}, invalid(f.Name, "not a %s id or mention", f.Kind)
}

func normalizeInt(f Field) (Value, *ValidationError) {
	n, err := strconv.ParseInt(strings.TrimSpace(f.Raw), 10, 64)
	if err != nil {
		return Value{}, invalid(f.Name, "not an integer")
	}
	c := f.Constraints
	if (c.Min != 0 || c.Max != 0) && (n < c.Min || n > c.Max) {
		return Value{}, invalid(f.Name, "%d outside [%d, %d]", n, c.Min, c.Max)
	}
	return Value{Text: strconv.FormatInt(n, 10), Int: n}, nil
}

func normalizeDuration(f Field) (Value, *ValidationError) {
	d, err := time.ParseDuration(strings.TrimSpace(f.Raw))
	if err != nil {
		return Value{}, invalid(f.Name, "not a duration")
	}
	c := f.Constraints
	if c.MinDuration == 0 && c.MaxDuration == 0 {
		if d < 0 {
			return Value{}, invalid(f.Name, "negative duration")
		}
	} else if d < c.MinDuration || d > c.MaxDuration {
		return Value{}, invalid(f.Name, "%s outside [%s, %s]", d, c.MinDuration, c.MaxDuration)
	}
	return Value{Text: d.String(), Duration: d}, nil
}

func normalizeEnum(f Field) (Value, *ValidationError) {
	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(f.Raw))
	for _, choice := range f.Constraints.Choices {
		if fold.String(choice) == want {
			return Value{Text: choice}, nil
		}
	}
	return Value{}, invalid(f.Name, "must be one of %s", strings.Join(f.Constraints.Choices, ", "))
}
