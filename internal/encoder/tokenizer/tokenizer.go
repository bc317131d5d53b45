package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	UnkToken  = "[UNK]"
	ClsToken  = "[CLS]"
	SepToken  = "[SEP]"
	PadToken  = "[PAD]"
	MaskToken = "[MASK]"
)

// SpecialTokens are never split and always occupy the first vocabulary ids
// of a vocabulary built with BuildVocab.
var SpecialTokens = []string{PadToken, UnkToken, ClsToken, SepToken, MaskToken}

// Tokenizer defines the interface for text tokenization.
type Tokenizer interface {
	Tokenize(text string) ([]string, []int)
	Encode(text string) []int
}

// WordPieceTokenizer implements BERT basic tokenization followed by WordPiece.
type WordPieceTokenizer struct {
	vocab         map[string]int
	maxInputChars int
	lowercase     bool
	neverSplit    map[string]bool
}

// Option configures a WordPieceTokenizer.
type Option func(*WordPieceTokenizer)

// WithCaseSensitive disables lower-casing, so "A" and "a" stay distinct.
func WithCaseSensitive() Option {
	return func(t *WordPieceTokenizer) { t.lowercase = false }
}

// NewWordPieceTokenizer creates a new WordPieceTokenizer from a vocab file.
func NewWordPieceTokenizer(vocabPath string, opts ...Option) (*WordPieceTokenizer, error) {
	vocab, err := loadVocab(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("load vocab %s: %w", vocabPath, err)
	}
	return newTokenizer(vocab, opts...), nil
}

// FromTokens creates a tokenizer whose vocabulary ids follow the order of tokens.
func FromTokens(tokens []string, opts ...Option) *WordPieceTokenizer {
	vocab := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		if _, ok := vocab[tok]; !ok {
			vocab[tok] = i
		}
	}
	return newTokenizer(vocab, opts...)
}

func newTokenizer(vocab map[string]int, opts ...Option) *WordPieceTokenizer {
	t := &WordPieceTokenizer{
		vocab:         vocab,
		maxInputChars: 200,
		lowercase:     true,
		neverSplit:    make(map[string]bool, len(SpecialTokens)),
	}
	for _, s := range SpecialTokens {
		t.neverSplit[s] = true
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// loadVocab reads a BERT-style vocab.txt file.
func loadVocab(path string) (map[string]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	vocab := make(map[string]int)
	scanner := bufio.NewScanner(file)
	index := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			vocab[line] = index
			index++
		}
	}
	return vocab, scanner.Err()
}

// BuildVocab returns a vocabulary covering every basic token in texts: the
// special tokens first, then the remaining tokens sorted. With it the encoder
// can run without a pretrained vocabulary file.
func BuildVocab(texts []string, opts ...Option) []string {
	t := newTokenizer(nil, opts...)
	seen := make(map[string]bool)
	for _, s := range SpecialTokens {
		seen[s] = true
	}

	var words []string
	for _, text := range texts {
		for _, tok := range t.basicTokenize(text) {
			if !seen[tok] {
				seen[tok] = true
				words = append(words, tok)
			}
		}
	}
	sort.Strings(words)

	out := make([]string, 0, len(SpecialTokens)+len(words))
	out = append(out, SpecialTokens...)
	return append(out, words...)
}

// VocabSize returns the number of distinct ids.
func (t *WordPieceTokenizer) VocabSize() int {
	max := -1
	for _, id := range t.vocab {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// ID returns the id of a vocabulary token.
func (t *WordPieceTokenizer) ID(token string) (int, bool) {
	id, ok := t.vocab[token]
	return id, ok
}

// isPunctuation checks if a rune is a punctuation character.
func isPunctuation(r rune) bool {
	if r < 128 {
		return punctuationTable[r]
	}
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// isIdeograph reports whether r is a CJK ideograph. BERT treats each
// ideograph as its own word.
func isIdeograph(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

// splitOnPunctuation splits text on whitespace, punctuation and ideographs,
// keeping punctuation and ideographs as separate tokens. It respects
// neverSplit tokens.
func (t *WordPieceTokenizer) splitOnPunctuation(text string) []string {
	var tokens []string

	runes := []rune(text)
	var currentToken strings.Builder
	flush := func() {
		if currentToken.Len() > 0 {
			tokens = append(tokens, currentToken.String())
			currentToken.Reset()
		}
	}

	i := 0
	for i < len(runes) {
		if runes[i] == '[' {
			suffix := string(runes[i:])
			matched := false
			for ns := range t.neverSplit {
				if strings.HasPrefix(suffix, ns) {
					flush()
					tokens = append(tokens, ns)
					i += len([]rune(ns))
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}

		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			flush()
		case isPunctuation(r), isIdeograph(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			currentToken.WriteRune(r)
		}
		i++
	}
	flush()
	return tokens
}

func (t *WordPieceTokenizer) normalize(token string) string {
	if t.lowercase {
		token = strings.ToLower(token)
	}
	tform := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(tform, token)
	if err != nil {
		return token
	}
	return out
}

// basicTokenize splits and normalizes text without WordPiece.
func (t *WordPieceTokenizer) basicTokenize(text string) []string {
	raw := t.splitOnPunctuation(text)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if t.neverSplit[tok] {
			out = append(out, tok)
			continue
		}
		if n := t.normalize(tok); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Tokenize implements the WordPiece algorithm and returns both the token
// strings and their ids.
func (t *WordPieceTokenizer) Tokenize(text string) ([]string, []int) {
	basic := t.basicTokenize(text)

	outputTokens := make([]string, 0, len(basic)*2)
	outputIDs := make([]int, 0, len(basic)*2)
	emitUnk := func() {
		outputTokens = append(outputTokens, UnkToken)
		outputIDs = append(outputIDs, t.vocab[UnkToken])
	}

	for _, token := range basic {
		if t.neverSplit[token] {
			if id, ok := t.vocab[token]; ok {
				outputTokens = append(outputTokens, token)
				outputIDs = append(outputIDs, id)
				continue
			}
		}

		if len(token) > t.maxInputChars {
			emitUnk()
			continue
		}

		isBad := false
		start := 0
		var subTokens []string
		for start < len(token) {
			end := len(token)
			var curSubstr string
			for start < end {
				substr := token[start:end]
				if start > 0 {
					substr = "##" + substr
				}
				if _, ok := t.vocab[substr]; ok {
					curSubstr = substr
					break
				}
				end--
			}
			if curSubstr == "" {
				isBad = true
				break
			}
			subTokens = append(subTokens, curSubstr)
			start = end
		}

		if isBad {
			emitUnk()
			continue
		}
		for _, st := range subTokens {
			outputTokens = append(outputTokens, st)
			outputIDs = append(outputIDs, t.vocab[st])
		}
	}

	return outputTokens, outputIDs
}

// Encode converts text into a slice of input IDs.
func (t *WordPieceTokenizer) Encode(text string) []int {
	_, ids := t.Tokenize(text)
	return ids
}
