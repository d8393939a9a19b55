// Package content models the text content stored in the snapshot: for each
// text reference the best available piece of content, one of fulltext,
// abstract or title. Content arrives as lists of paragraphs and can be
// processed once into plaintext, optionally filtered to paragraphs that
// mention one of a set of tokens.
package content

import (
	"fmt"
	"regexp"
	"strings"
)

// Text types stored in the snapshot, in decreasing order of preference.
const (
	TypeFulltext = "fulltext"
	TypeAbstract = "abstract"
	TypeTitle    = "title"
)

// AllTypes lists every text type.
var AllTypes = []string{TypeFulltext, TypeAbstract, TypeTitle}

// Row is one row of content from the best_content table: a text reference,
// the type of its best content, and the content split into paragraphs.
type Row struct {
	TextRefID  int64
	TextType   string
	Paragraphs []string
}

// TextContent stores unprocessed content keyed by text ref id, one map per
// text type.
type TextContent struct {
	Fulltexts map[int64][]string
	Abstracts map[int64][]string
	Titles    map[int64][]string
}

// New builds a TextContent from content rows. Rows with an unknown text
// type are ignored.
func New(rows []Row) *TextContent {
	tc := &TextContent{
		Fulltexts: make(map[int64][]string),
		Abstracts: make(map[int64][]string),
		Titles:    make(map[int64][]string),
	}
	for _, row := range rows {
		switch row.TextType {
		case TypeFulltext:
			tc.Fulltexts[row.TextRefID] = row.Paragraphs
		case TypeAbstract:
			tc.Abstracts[row.TextRefID] = row.Paragraphs
		case TypeTitle:
			tc.Titles[row.TextRefID] = row.Paragraphs
		}
	}
	return tc
}

// Len returns the total number of content entries.
func (tc *TextContent) Len() int {
	return len(tc.Fulltexts) + len(tc.Abstracts) + len(tc.Titles)
}

// String summarises the held content.
func (tc *TextContent) String() string {
	return fmt.Sprintf("TextContent(%d fulltexts, %d abstracts, %d titles)",
		len(tc.Fulltexts), len(tc.Abstracts), len(tc.Titles))
}

// Plaintexts holds processed content: one plaintext per text ref, keyed by
// text type. Processing is one way; a Plaintexts cannot be turned back into
// paragraph lists.
type Plaintexts struct {
	Fulltexts map[int64]string
	Abstracts map[int64]string
	Titles    map[int64]string
}

// Len returns the total number of plaintext entries.
func (p *Plaintexts) Len() int {
	return len(p.Fulltexts) + len(p.Abstracts) + len(p.Titles)
}

// String summarises the held content.
func (p *Plaintexts) String() string {
	return fmt.Sprintf("Plaintexts(%d fulltexts, %d abstracts, %d titles)",
		len(p.Fulltexts), len(p.Abstracts), len(p.Titles))
}

// Process concatenates each entry's paragraphs into plaintext, separating by
// newlines. contains optionally filters to paragraphs mentioning at least
// one of the given tokens or n-grams as whole words. textTypes optionally
// restricts output to the listed text types; nil includes all of them.
// Entries whose filtered text is empty are dropped.
func (tc *TextContent) Process(contains []string, textTypes []string) (*Plaintexts, error) {
	if textTypes == nil {
		textTypes = AllTypes
	}
	wanted := make(map[string]bool, len(textTypes))
	for _, tt := range textTypes {
		wanted[tt] = true
	}

	pattern, err := containsPattern(contains)
	if err != nil {
		return nil, err
	}

	out := &Plaintexts{
		Fulltexts: make(map[int64]string),
		Abstracts: make(map[int64]string),
		Titles:    make(map[int64]string),
	}
	process := func(in map[int64][]string, dst map[int64]string, textType string) {
		if !wanted[textType] {
			return
		}
		for textRefID, paragraphs := range in {
			text := joinFiltered(paragraphs, pattern)
			if len(text) > 1 {
				dst[textRefID] = text
			}
		}
	}
	process(tc.Fulltexts, out.Fulltexts, TypeFulltext)
	process(tc.Abstracts, out.Abstracts, TypeAbstract)
	process(tc.Titles, out.Titles, TypeTitle)
	return out, nil
}

// FilterParagraphs joins paragraphs into one plaintext, keeping only those
// containing at least one of the tokens in contains as a whole word. With no
// tokens every paragraph is kept.
func FilterParagraphs(paragraphs []string, contains []string) (string, error) {
	pattern, err := containsPattern(contains)
	if err != nil {
		return "", err
	}
	return joinFiltered(paragraphs, pattern), nil
}

// containsPattern builds the whole-word search pattern for the given tokens.
// A nil pattern means no filtering.
func containsPattern(contains []string) (*regexp.Regexp, error) {
	if len(contains) == 0 {
		return nil, nil
	}
	alternatives := make([]string, len(contains))
	for i, token := range contains {
		alternatives[i] = fmt.Sprintf(`(^|[^\w])%s([^\w]|$)`, regexp.QuoteMeta(token))
	}
	pattern, err := regexp.Compile(strings.Join(alternatives, "|"))
	if err != nil {
		return nil, fmt.Errorf("failed to compile token filter: %w", err)
	}
	return pattern, nil
}

// joinFiltered applies the optional paragraph filter and joins the
// survivors with newlines. The result carries a trailing newline, so a
// fully filtered entry is the single character "\n".
func joinFiltered(paragraphs []string, pattern *regexp.Regexp) string {
	kept := paragraphs
	if pattern != nil {
		kept = nil
		for _, p := range paragraphs {
			if pattern.MatchString(p) {
				kept = append(kept, p)
			}
		}
	}
	return strings.Join(kept, "\n") + "\n"
}
