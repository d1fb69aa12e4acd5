package federation

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// TokenRewriter only touches identifier and string-literal tokens whose value
// equals an original column name. Original names that cannot appear as a
// single bare token, such as "Customer Name", are left to TextRewriter, as is
// the whole statement when the scanner rejects it.
type TokenRewriter struct{}

func (TokenRewriter) Rewrite(sqlText string, columnMaps []map[string]string) string {
	scan, err := pg_query.Scan(sqlText)
	if err != nil {
		return TextRewriter{}.Rewrite(sqlText, columnMaps)
	}

	lookup := map[string]string{}
	for _, columnMap := range columnMaps {
		for original, normalized := range columnMap {
			lookup[original] = normalized
		}
	}

	var b strings.Builder
	b.Grow(len(sqlText))
	cursor := 0
	for _, token := range scan.GetTokens() {
		start, end := int(token.GetStart()), int(token.GetEnd())
		if start < cursor || end > len(sqlText) || start >= end {
			continue
		}
		text := sqlText[start:end]
		replacement, ok := rewriteToken(token, text, lookup)
		if !ok {
			continue
		}
		b.WriteString(sqlText[cursor:start])
		b.WriteString(replacement)
		cursor = end
	}
	b.WriteString(sqlText[cursor:])
	rewritten := b.String()

	leftovers := make([]map[string]string, 0, len(columnMaps))
	for _, columnMap := range columnMaps {
		rest := map[string]string{}
		for original, normalized := range columnMap {
			if !isBareIdentifier(original) {
				rest[original] = normalized
			}
		}
		if len(rest) > 0 {
			leftovers = append(leftovers, rest)
		}
	}
	if len(leftovers) == 0 {
		return rewritten
	}
	return TextRewriter{}.Rewrite(rewritten, leftovers)
}

func rewriteToken(token *pg_query.ScanToken, text string, lookup map[string]string) (string, bool) {
	switch {
	case token.GetToken() == pg_query.Token_SCONST:
		value, ok := unquote(text, '\'')
		if !ok {
			return "", false
		}
		normalized, found := lookup[value]
		return normalized, found
	case token.GetToken() == pg_query.Token_IDENT && strings.HasPrefix(text, `"`):
		value, ok := unquote(text, '"')
		if !ok {
			return "", false
		}
		normalized, found := lookup[value]
		if !found {
			return "", false
		}
		return `"` + strings.ReplaceAll(normalized, `"`, `""`) + `"`, true
	case token.GetToken() == pg_query.Token_IDENT || token.GetKeywordKind() == pg_query.KeywordKind_UNRESERVED_KEYWORD || token.GetKeywordKind() == pg_query.KeywordKind_COL_NAME_KEYWORD:
		normalized, found := lookup[text]
		return normalized, found
	default:
		return "", false
	}
}

func unquote(text string, quote byte) (string, bool) {
	if len(text) < 2 || text[0] != quote || text[len(text)-1] != quote {
		return "", false
	}
	inner := text[1 : len(text)-1]
	return strings.ReplaceAll(inner, string([]byte{quote, quote}), string(quote)), true
}

func isBareIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
