package embedding

// Tokenizer produces token IDs for BERT-style models. The returned slices
// are unpadded; the embedder windows and pads them itself.
type Tokenizer interface {
	Tokenize(text string) (inputIDs, attentionMask []int64)
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs.
// It is not a real subword vocabulary but is deterministic, which is all
// the windowing and staleness machinery depend on.
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces token IDs with [CLS]/[SEP] markers.
func (t *SimpleTokenizer) Tokenize(text string) (inputIDs, attentionMask []int64) {
	words := SplitWords(text)
	inputIDs = make([]int64, 0, len(words)+2)
	inputIDs = append(inputIDs, 101) // [CLS]
	for _, word := range words {
		inputIDs = append(inputIDs, int64(HashString(word)%30000))
	}
	inputIDs = append(inputIDs, 102) // [SEP]
	attentionMask = make([]int64, len(inputIDs))
	for i := range attentionMask {
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	var words []string
	word := ""
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			if word != "" {
				words = append(words, word)
				word = ""
			}
		} else {
			word += string(r)
		}
	}
	if word != "" {
		words = append(words, word)
	}
	return words
}

// HashString returns a deterministic hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
