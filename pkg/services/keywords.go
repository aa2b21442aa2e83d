package services

import (
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// stopwords are dropped from user text before matching. Small by design:
// the matcher only needs to ignore glue words, not understand English.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "get": true, "give": true,
	"has": true, "have": true, "how": true, "in": true, "is": true, "it": true,
	"list": true, "many": true, "me": true, "my": true, "of": true, "on": true,
	"or": true, "per": true, "show": true, "that": true, "the": true,
	"their": true, "there": true, "this": true, "to": true, "up": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"with": true,
}

// KeywordMatcher maps free-text tokens to candidate tables or collections.
// Purely lexical; an empty result is a valid answer.
type KeywordMatcher struct{}

// NewKeywordMatcher creates a matcher.
func NewKeywordMatcher() *KeywordMatcher {
	return &KeywordMatcher{}
}

// Match returns the names of schema entities whose name or any field name
// contains a token from the user text. Tokens are folded to singular so
// "users" matches a "user" collection and vice versa.
func (m *KeywordMatcher) Match(kind models.DatabaseKind, schemaJSON, userText string) []string {
	entities, err := parseSchemaEntities(kind, schemaJSON)
	if err != nil || len(entities) == 0 {
		return nil
	}

	tokens := Tokenize(userText)
	if len(tokens) == 0 {
		return nil
	}

	var candidates []string
	for _, e := range entities {
		if m.entityMatches(e, tokens) {
			candidates = append(candidates, e.Name)
		}
	}
	return candidates
}

func (m *KeywordMatcher) entityMatches(e schemaEntity, tokens []string) bool {
	name := strings.ToLower(e.Name)
	nameSingular := inflection.Singular(name)
	for _, tok := range tokens {
		if strings.Contains(name, tok) || strings.Contains(nameSingular, tok) ||
			strings.Contains(tok, nameSingular) && nameSingular != "" {
			return true
		}
		for _, field := range e.Fields {
			if strings.Contains(strings.ToLower(field), tok) {
				return true
			}
		}
	}
	return false
}

// Tokenize lowercases, splits on non-alphanumerics, drops stopwords and
// short fragments, and folds plurals to singular.
func Tokenize(text string) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})

	seen := make(map[string]bool, len(raw))
	var tokens []string
	for _, t := range raw {
		if len(t) < 3 || stopwords[t] {
			continue
		}
		t = inflection.Singular(t)
		if seen[t] {
			continue
		}
		seen[t] = true
		tokens = append(tokens, t)
	}
	return tokens
}
