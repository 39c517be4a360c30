package captions

import "strings"

// graphEscaper protects a value from the filter graph parser, which splits
// filters on , and ; and strips one level of quotes and backslashes.
var graphEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`[`, `\[`,
	`]`, `\]`,
	`,`, `\,`,
	`;`, `\;`,
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// EscapeFilterText encodes s as a filter option value that reaches the filter
// unchanged. The value is single-quoted for the option parser (a quote inside
// becomes '\'') and the result is backslash-escaped for the graph parser.
// Line breaks become spaces; multi-line captions are separate drawtext filters.
// Pair it with expansion=none so drawtext does not interpret % or \.
func EscapeFilterText(s string) string {
	quoted := "'" + strings.ReplaceAll(lineBreaks.Replace(s), "'", `'\''`) + "'"
	return graphEscaper.Replace(quoted)
}
