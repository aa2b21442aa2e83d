package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Show me the latest orders", []string{"latest", "order"}},
		{"how many users are there", []string{"user"}},
		{"top 5 products by revenue", []string{"top", "product", "revenue"}},
		{"users users USERS", []string{"user"}},
		{"", nil},
		{"a an of", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tokenize(tt.text), "text: %q", tt.text)
	}
}

func TestMatch_SingularFolding(t *testing.T) {
	m := NewKeywordMatcher()

	got := m.Match(models.KindMongo, usersCollectionSchema, "show me all users")
	assert.Equal(t, []string{"users"}, got)

	// Singular query text still matches the plural collection name.
	got = m.Match(models.KindMongo, usersCollectionSchema, "find one user")
	assert.Contains(t, got, "users")
}

func TestMatch_FieldNamesCount(t *testing.T) {
	m := NewKeywordMatcher()

	got := m.Match(models.KindMongo, usersCollectionSchema, "what is the total?")
	assert.Contains(t, got, "orders", "a field-name hit qualifies the collection")
}

func TestMatch_RelationalSchema(t *testing.T) {
	m := NewKeywordMatcher()

	got := m.Match(models.KindPostgres, ordersTableSchema, "count the orders")
	assert.Equal(t, []string{"public.orders"}, got)
}

func TestMatch_NoHitsIsEmpty(t *testing.T) {
	m := NewKeywordMatcher()

	assert.Empty(t, m.Match(models.KindMongo, usersCollectionSchema, "weather in Berlin"))
	assert.Empty(t, m.Match(models.KindMongo, "[]", "show me users"))
	assert.Empty(t, m.Match(models.KindMongo, "not json", "show me users"))
}
