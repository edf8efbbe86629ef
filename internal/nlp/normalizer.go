// Package nlp turns free clinical text into tokens and maps them onto rubrics.
package nlp

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/reperto-cdss-server/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

var nonLetter = regexp.MustCompile(`[^a-z\t\n\v\f\r ]`)

// Vocabulary is the versioned synonym map and stopword list.
type Vocabulary struct {
	Version   string              `yaml:"version"`
	Stopwords []string            `yaml:"stopwords"`
	Synonyms  map[string][]string `yaml:"synonyms"`
}

// ParseVocabulary decodes a YAML vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	for term, anchors := range v.Synonyms {
		if len(anchors) == 0 {
			return nil, fmt.Errorf("synonym %q has no anchors", term)
		}
	}
	return &v, nil
}

// DefaultVocabulary returns the embedded vocabulary.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabulary)
	if err != nil {
		panic(err)
	}
	return v
}

// Normalizer converts case text into a TokenSet. It is immutable after
// construction and safe for concurrent use.
type Normalizer struct {
	version   string
	stopwords map[string]struct{}
	synonyms  map[string][]string
}

// NewNormalizer builds a normalizer from a vocabulary. Nil selects the embedded one.
func NewNormalizer(v *Vocabulary) *Normalizer {
	if v == nil {
		v = DefaultVocabulary()
	}
	n := &Normalizer{
		version:   v.Version,
		stopwords: make(map[string]struct{}, len(v.Stopwords)),
		synonyms:  make(map[string][]string, len(v.Synonyms)),
	}
	for _, w := range v.Stopwords {
		n.stopwords[strings.ToLower(w)] = struct{}{}
	}
	for term, anchors := range v.Synonyms {
		n.synonyms[strings.ToLower(term)] = append([]string(nil), anchors...)
	}
	return n
}

// Version identifies the vocabulary in use.
func (n *Normalizer) Version() string { return n.version }

// Normalize lower-cases the text, blanks everything but ASCII letters and
// whitespace, drops stopwords and expands synonyms into all their anchors.
func (n *Normalizer) Normalize(text string) domain.TokenSet {
	cleaned := nonLetter.ReplaceAllString(strings.ToLower(text), " ")

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		if _, stop := n.stopwords[word]; stop {
			continue
		}
		if anchors, ok := n.synonyms[word]; ok {
			tokens = append(tokens, anchors...)
			continue
		}
		tokens = append(tokens, word)
	}
	return domain.NewTokenSet(tokens...)
}
