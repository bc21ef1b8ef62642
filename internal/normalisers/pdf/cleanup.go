package pdf

import (
	"regexp"
	"strings"
)

// mojibake undoes UTF-8 text that was decoded as Windows-1252 somewhere
// between the PDF producer and the extractor.
var mojibake = strings.NewReplacer(
	"â€™", "'",
	"â€˜", "'",
	"â€œ", `"`,
	"â€\u009d", `"`,
	"â€“", "-",
	"â€”", "-",
	"â€¦", "...",
	"â€¢", "-",
	"Ã©", "é",
	"Ã¨", "è",
	"Ãª", "ê",
	"Ã¢", "â",
	"Ã\u00a0", "à",
	"Ã§", "ç",
	"Ã´", "ô",
	"Ã¶", "ö",
	"Ã¼", "ü",
	"Ã¤", "ä",
	"Ã±", "ñ",
	"Â\u00a0", " ",
	"Â·", "·",
)

// glyphs maps ligatures, typographic punctuation and stray control
// characters from lossy PDF text layers to plain equivalents.
var glyphs = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"ﬅ", "st",
	"ﬆ", "st",
	"‘", "'",
	"’", "'",
	"‚", "'",
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"–", "-",
	"—", "-",
	"−", "-",
	"…", "...",
	"\u00a0", " ",
	"\u00ad", "",
	"\uf0b7", "-",
	"\ufffd", "",
	"\x00", "",
	"\f", "\n\n",
	"\r\n", "\n",
	"\r", "\n",
)

var (
	hyphenBreak   = regexp.MustCompile(`(\p{L})-\n[ \t]*(\p{Ll})`)
	spaceRuns     = regexp.MustCompile(`[ \t]+`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// RepairEncoding fixes known corruption patterns in extracted PDF text
// and normalises whitespace.
func RepairEncoding(text string) string {
	text = mojibake.Replace(text)
	text = glyphs.Replace(text)
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	return strings.TrimSpace(blankLineRuns.ReplaceAllString(text, "\n\n"))
}
