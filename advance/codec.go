/*
Package advance implements deferred advances ("PMA": post-month advances)
and the token codec that embeds them in a record's free-text notes.

A deferred advance is an advance attributable to another date than the
record it is filed under, e.g. paid after a pay period closed but belonging
to it. Records own them as a first-class []Entry; the codec exists for
byte-compatible import/export of notes written in the legacy layout.

TOKEN GRAMMAR:
  [PMA:<id>:<YYYY-MM-DD>:<amount>:<notes>]

  Fields are escaped so that '[', ']', ':' and '%' never appear raw inside a
  token (%5B %5D %3A %25). Tokens may appear anywhere in the text, any number
  of times, interleaved with ordinary notes. Serialized lists are joined by a
  single space, and Compose separates plain text from tokens the same way.

ROUND TRIP:
  For trimmed plain text p free of token syntax and any list L:
    Parse(Compose(p, Serialize(L)))  == L
    Strip(Compose(p, Serialize(L)))  == p
*/
package advance

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/generic"
)

// Entry is one deferred advance.
type Entry struct {
	ID     string            `json:"id"`
	Date   generic.TimePoint `json:"date"`
	Amount decimal.Decimal   `json:"amount"`
	Notes  string            `json:"notes,omitempty"`
}

const tokenTag = "PMA"

var tokenPattern = regexp.MustCompile(`\[` + tokenTag + `:([^\[\]:]*):([^\[\]:]*):([^\[\]:]*):([^\[\]]*)\]`)

var (
	escaper   = strings.NewReplacer("%", "%25", "[", "%5B", "]", "%5D", ":", "%3A")
	unescaper = strings.NewReplacer("%25", "%", "%5B", "[", "%5D", "]", "%3A", ":")
)

// =============================================================================
// ENCODE
// =============================================================================

// Token renders a single entry.
func Token(e Entry) string {
	var b strings.Builder
	b.WriteString("[" + tokenTag + ":")
	b.WriteString(escaper.Replace(e.ID))
	b.WriteByte(':')
	b.WriteString(e.Date.String())
	b.WriteByte(':')
	b.WriteString(e.Amount.String())
	b.WriteByte(':')
	b.WriteString(escaper.Replace(e.Notes))
	b.WriteByte(']')
	return b.String()
}

// Serialize renders entries as space-separated tokens.
func Serialize(entries []Entry) string {
	tokens := make([]string, len(entries))
	for i, e := range entries {
		tokens[i] = Token(e)
	}
	return strings.Join(tokens, " ")
}

// Compose rebuilds a notes string from plain text and serialized tokens.
func Compose(plain, tokenText string) string {
	switch {
	case tokenText == "":
		return plain
	case plain == "":
		return tokenText
	default:
		return plain + " " + tokenText
	}
}

// Join is Compose(plain, Serialize(entries)).
func Join(plain string, entries []Entry) string {
	return Compose(plain, Serialize(entries))
}

// =============================================================================
// DECODE
// =============================================================================

// Parse extracts every well-formed token in text, in order of appearance.
// Tokens with an unparseable date or amount, or an empty id, are skipped.
func Parse(text string) []Entry {
	var entries []Entry
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		e, ok := decode(m)
		if ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func decode(m []string) (Entry, bool) {
	id := unescaper.Replace(m[1])
	if id == "" {
		return Entry{}, false
	}
	date, err := generic.ParseTimePoint(m[2])
	if err != nil {
		return Entry{}, false
	}
	amount, err := decimal.NewFromString(m[3])
	if err != nil {
		return Entry{}, false
	}
	return Entry{ID: id, Date: date, Amount: amount, Notes: unescaper.Replace(m[4])}, true
}

// Strip removes all tokens, malformed ones included, joins the surrounding
// text with single spaces and trims the edges.
func Strip(text string) string {
	return StripSeparated(text, "")
}

// StripSeparated is Strip for notes built by joining fragments with
// separator. Separators left dangling next to a removed token are dropped,
// and text that was separated before stays separated by exactly one.
func StripSeparated(text, separator string) string {
	locs := tokenPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(text)
	}

	sep := strings.TrimSpace(separator)
	var b strings.Builder
	separated := false
	emit := func(part string) {
		part, lead, trail := trimSeparator(part, sep)
		if part == "" {
			separated = separated || lead || trail
			return
		}
		if b.Len() > 0 {
			if separated || lead {
				b.WriteString(separator)
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(part)
		separated = trail
	}

	prev := 0
	for _, loc := range locs {
		emit(text[prev:loc[0]])
		prev = loc[1]
	}
	emit(text[prev:])
	return b.String()
}

// trimSeparator trims spaces and any run of sep from both ends of s,
// reporting which ends had one.
func trimSeparator(s, sep string) (out string, lead, trail bool) {
	s = strings.TrimSpace(s)
	if sep == "" {
		return s, false, false
	}
	for strings.HasPrefix(s, sep) {
		s = strings.TrimSpace(s[len(sep):])
		lead = true
	}
	for strings.HasSuffix(s, sep) {
		s = strings.TrimSpace(s[:len(s)-len(sep)])
		trail = true
	}
	return s, lead, trail
}

// Split separates legacy notes into plain text and entries.
func Split(text string) (string, []Entry) {
	return Strip(text), Parse(text)
}

// SplitSeparated is Split using StripSeparated.
func SplitSeparated(text, separator string) (string, []Entry) {
	return StripSeparated(text, separator), Parse(text)
}

// ContainsTokens reports whether text holds any token-shaped substring.
func ContainsTokens(text string) bool {
	return tokenPattern.MatchString(text)
}

// =============================================================================
// AGGREGATES
// =============================================================================

// Total sums entry amounts.
func Total(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// Index returns the position of the entry with id, or -1.
func Index(entries []Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
