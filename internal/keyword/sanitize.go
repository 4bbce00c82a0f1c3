package keyword

import "strings"

// SanitizeQuery neutralizes query-language syntax in user text so it can
// never be interpreted as operators by the index. Boolean operator words
// and terms carrying wildcard or field-qualifier characters are dropped;
// quotes are stripped from the remaining terms.
func SanitizeQuery(query string) string {
	words := strings.Fields(query)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		switch strings.ToUpper(word) {
		case "OR", "AND", "NOT", "NEAR":
			continue
		}
		if strings.ContainsAny(word, "*:+-^~()[]{}") {
			continue
		}
		word = strings.ReplaceAll(word, `"`, "")
		if word != "" {
			terms = append(terms, word)
		}
	}
	return strings.Join(terms, " ")
}
