package collect

import "github.com/TobiSchelling/NewsSync/internal/article"

// Dedupe drops articles whose Identity was already seen. The first occurrence
// wins and input order is kept.
func Dedupe(articles []article.Article) []article.Article {
	seen := make(map[string]struct{}, len(articles))
	out := make([]article.Article, 0, len(articles))
	for _, a := range articles {
		if _, ok := seen[a.Identity]; ok {
			continue
		}
		seen[a.Identity] = struct{}{}
		out = append(out, a)
	}
	return out
}
