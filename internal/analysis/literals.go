package analysis

import (
	"strings"

	"resym/internal/parse"
)

// Mention is a whole-word occurrence of a symbol name inside a string
// literal or comment. Mentions are never edited; plans surface them so a
// caller can review docstrings and comments by hand.
type Mention struct {
	Span  parse.Span
	Class parse.TokenClass
}

// Mentions scans the non-code regions of a tree for whole-word
// occurrences of name.
func Mentions(tree *parse.Tree, name string) []Mention {
	if name == "" {
		return nil
	}
	var out []Mention
	text := tree.Text
	for _, tok := range tree.Tokens {
		if tok.Class == parse.ClassCode {
			continue
		}
		if tok.Span.End > len(text) {
			continue
		}
		region := text[tok.Span.Start:tok.Span.End]
		for off := 0; ; {
			i := indexWord(region[off:], name)
			if i < 0 {
				break
			}
			start := tok.Span.Start + off + i
			out = append(out, Mention{
				Span:  parse.Span{Start: start, End: start + len(name)},
				Class: tok.Class,
			})
			off += i + len(name)
		}
	}
	return out
}

// indexWord finds the first occurrence of name in s that is not part of a
// longer identifier.
func indexWord(s, name string) int {
	from := 0
	for {
		i := strings.Index(s[from:], name)
		if i < 0 {
			return -1
		}
		abs := from + i
		before := abs == 0 || !identChar(s[abs-1])
		afterIdx := abs + len(name)
		after := afterIdx >= len(s) || !identChar(s[afterIdx])
		if before && after {
			return abs
		}
		from = abs + 1
	}
}

func identChar(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= 0x80
}
