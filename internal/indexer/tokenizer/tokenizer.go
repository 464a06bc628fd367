// Package tokenizer turns raw document bytes into normalised terms. It splits
// on non-alphanumeric boundaries and case-folds every word. Stop-word removal
// and a simple suffix-based stemmer are available as options but are off by
// default, since membership lookups must match the literal word.
package tokenizer

import (
	"iter"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Options configures a Tokenizer.
type Options struct {
	// MinLength is the minimum term length in runes. Values below 1 are
	// treated as 1.
	MinLength int
	StopWords bool
	Stem      bool
}

// Tokenizer is immutable and safe for concurrent use.
type Tokenizer struct {
	opts Options
}

var defaultTokenizer = New(Options{MinLength: 1})

// New returns a Tokenizer with the given options.
func New(opts Options) *Tokenizer {
	if opts.MinLength < 1 {
		opts.MinLength = 1
	}
	return &Tokenizer{opts: opts}
}

// Default returns the tokenizer used when no options are configured.
func Default() *Tokenizer {
	return defaultTokenizer
}

// Options returns the options the tokenizer was built with.
func (t *Tokenizer) Options() Options {
	return t.opts
}

// Terms lazily yields the terms of content in order of appearance. Bytes that
// are not valid UTF-8 are dropped and act as word boundaries.
func (t *Tokenizer) Terms(content []byte) iter.Seq[string] {
	return func(yield func(string) bool) {
		fold := cases.Fold()
		start := -1
		for i := 0; i < len(content); {
			r, size := utf8.DecodeRune(content[i:])
			isWord := r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
			if isWord {
				if start < 0 {
					start = i
				}
			} else if start >= 0 {
				if term, ok := t.normalize(fold, content[start:i]); ok && !yield(term) {
					return
				}
				start = -1
			}
			i += size
		}
		if start >= 0 {
			if term, ok := t.normalize(fold, content[start:]); ok {
				yield(term)
			}
		}
	}
}

// Tokenize collects the terms of text into a slice.
func (t *Tokenizer) Tokenize(text string) []string {
	return slices.Collect(t.Terms([]byte(text)))
}

// Terms yields the terms of content using the default tokenizer.
func Terms(content []byte) iter.Seq[string] {
	return defaultTokenizer.Terms(content)
}

// Tokenize collects the terms of text using the default tokenizer.
func Tokenize(text string) []string {
	return defaultTokenizer.Tokenize(text)
}

func (t *Tokenizer) normalize(fold cases.Caser, word []byte) (string, bool) {
	fold.Reset()
	term := fold.String(string(word))
	if utf8.RuneCountInString(term) < t.opts.MinLength {
		return "", false
	}
	if t.opts.StopWords {
		if _, isStop := stopWords[term]; isStop {
			return "", false
		}
	}
	if t.opts.Stem {
		term = stem(term)
		if term == "" {
			return "", false
		}
	}
	return term, true
}

var suffixes = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem applies a simple suffix-stripping stemmer to the given word. The first
// matching rule whose result is long enough wins.
func stem(word string) string {
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
