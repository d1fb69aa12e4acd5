package federation

import (
	"sort"
	"strings"
)

// Rewriter substitutes original column names in model-generated SQL with the
// normalized names the transient engine knows. Each map goes original to
// normalized and belongs to one ephemeral table; maps are applied in order.
type Rewriter interface {
	Rewrite(sqlText string, columnMaps []map[string]string) string
}

// TextRewriter replaces a fixed set of surface forms of each original name.
// It is a heuristic: a name adjacent to other punctuation is missed, and a
// matching word inside a string literal is replaced too.
type TextRewriter struct{}

func (TextRewriter) Rewrite(sqlText string, columnMaps []map[string]string) string {
	for _, columnMap := range columnMaps {
		for _, pair := range longestFirst(columnMap) {
			sqlText = replaceSurfaceForms(sqlText, pair.original, pair.normalized)
		}
	}
	return sqlText
}

func replaceSurfaceForms(sqlText, original, normalized string) string {
	if original == "" {
		return sqlText
	}
	replacer := [][2]string{
		{`"` + original + `"`, normalized},
		{`'` + original + `'`, normalized},
		{" " + original + " ", " " + normalized + " "},
		{"(" + original + " ", "(" + normalized + " "},
		{" " + original + ")", " " + normalized + ")"},
		{"," + original + " ", "," + normalized + " "},
		{" " + original + ",", " " + normalized + ","},
	}
	for _, form := range replacer {
		sqlText = strings.ReplaceAll(sqlText, form[0], form[1])
	}
	return sqlText
}

type columnPair struct {
	original   string
	normalized string
}

// longestFirst orders pairs so that a name is never replaced inside a longer
// name sharing it as a substring.
func longestFirst(columnMap map[string]string) []columnPair {
	pairs := make([]columnPair, 0, len(columnMap))
	for original, normalized := range columnMap {
		pairs = append(pairs, columnPair{original: original, normalized: normalized})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if len(pairs[i].original) != len(pairs[j].original) {
			return len(pairs[i].original) > len(pairs[j].original)
		}
		return pairs[i].original < pairs[j].original
	})
	return pairs
}

// NewRewriter returns the rewriter registered under mode.
func NewRewriter(mode string) Rewriter {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "token":
		return TokenRewriter{}
	default:
		return TextRewriter{}
	}
}
