package analysis

import (
	"fmt"
	"strings"
)

// InputType selects which keyword vocabulary applies to a token sequence.
type InputType string

const (
	Symbolic InputType = "symbolic"
	Verbal   InputType = "verbal"
)

// InputTypes lists the recognized tags in the order experiments visit them.
var InputTypes = []InputType{Symbolic, Verbal}

// ParseInputType is for config and CLI edges. LocateKeywords itself accepts any tag.
func ParseInputType(s string) (InputType, error) {
	switch t := InputType(strings.ToLower(strings.TrimSpace(s))); t {
	case Symbolic, Verbal:
		return t, nil
	default:
		return "", fmt.Errorf("unknown input type: %q", s)
	}
}

// operatorCutset is trimmed from both ends of a symbolic token before lookup,
// so "+x" matches "x" while a bare "+" still matches itself.
const operatorCutset = "=+-*/"

var symbolicKeywords = map[string]struct{}{
	"x": {}, "y": {}, "a": {}, "b": {}, "m": {}, "n": {},
	"=": {}, "+": {}, "-": {}, "*": {}, "/": {},
	"求": {},
}

var verbalKeywords = map[string]struct{}{
	"求": {}, "加": {}, "减": {}, "乘": {}, "除": {},
	// The native tokenizer splits Han characters, so only external vocabularies emit this.
	"等于": {},
}

// LocateKeywords returns the positions of tokens that count as keywords for t,
// in token order. Repeated keywords yield repeated positions. An unrecognized
// tag yields no keywords.
func LocateKeywords(tokens []string, t InputType) []int {
	var indices []int
	switch t {
	case Symbolic:
		for i, tok := range tokens {
			if _, ok := symbolicKeywords[strings.Trim(tok, operatorCutset)]; ok {
				indices = append(indices, i)
				continue
			}
			if _, ok := symbolicKeywords[tok]; ok {
				indices = append(indices, i)
			}
		}
	case Verbal:
		for i, tok := range tokens {
			if _, ok := verbalKeywords[tok]; ok {
				indices = append(indices, i)
			}
		}
	}
	return indices
}
