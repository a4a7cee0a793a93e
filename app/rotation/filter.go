package rotation

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	urlRe = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+|\b[a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:com|net|org|io|co|me|tr|ru|info)(?:/\S*)?`)
	// @handle mentions; underscores and digits are valid handle characters
	mentionRe = regexp.MustCompile(`@\w+`)
	// Provenance header a client prepends when a post is forwarded. Stripped
	// after URLs so a link inside the header never survives on its own line.
	forwardRe    = regexp.MustCompile(`(?im)^[^\S\n]*forwarded from\b.*$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Filter decides whether an item is publishable and produces its cleaned
// text. Evaluate is pure: no I/O, same input always yields the same result.
type Filter struct {
	bannedTerms []string
	folder      cases.Caser
}

func NewFilter(bannedTerms []string) *Filter {
	folder := cases.Fold()
	folded := make([]string, 0, len(bannedTerms))
	for _, term := range bannedTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		folded = append(folded, folder.String(term))
	}

	return &Filter{
		bannedTerms: folded,
		folder:      folder,
	}
}

func (f *Filter) Evaluate(item Item) FilterResult {
	text := item.Text
	if text == "" {
		text = item.Caption
	}

	cleaned := Clean(text)

	if f.isBanned(cleaned) {
		return FilterResult{Accept: false, CleanedText: cleaned, Reason: ReasonBannedTerm}
	}

	if cleaned == "" && item.MediaRef == "" {
		return FilterResult{Accept: false, CleanedText: "", Reason: ReasonEmptyContent}
	}

	return FilterResult{Accept: true, CleanedText: cleaned, Reason: ReasonNone}
}

// Clean strips URLs, mentions and forwarding provenance headers, then
// collapses whitespace. Strip order matters: headers can contain URLs, and
// both passes must apply.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = urlRe.ReplaceAllString(text, "")
	text = mentionRe.ReplaceAllString(text, "")
	text = forwardRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// isBanned does case-folded substring matching. Substring, not word-boundary,
// matching is the inherited source policy: a banned "kazan" also rejects
// "kazandırmak".
func (f *Filter) isBanned(cleaned string) bool {
	if cleaned == "" || len(f.bannedTerms) == 0 {
		return false
	}

	folded := f.folder.String(cleaned)
	for _, term := range f.bannedTerms {
		if strings.Contains(folded, term) {
			return true
		}
	}
	return false
}
