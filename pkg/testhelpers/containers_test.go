//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestSharedPostgres_SeededFixture(t *testing.T) {
	testDB := GetTestPostgres(t)
	ctx := context.Background()

	tests := []struct {
		table    string
		expected int
	}{
		{"users", 3},
		{"orders", 5},
	}
	for _, tt := range tests {
		var count int
		err := testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+tt.table).Scan(&count)
		if err != nil {
			t.Errorf("failed to count %s: %v", tt.table, err)
			continue
		}
		if count != tt.expected {
			t.Errorf("%s: expected %d rows, got %d", tt.table, tt.expected, count)
		}
	}
}

func TestSharedMySQL_SeededFixture(t *testing.T) {
	testDB := GetTestMySQL(t)
	ctx := context.Background()

	var count int
	if err := testDB.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&count); err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if count != 5 {
		t.Errorf("orders: expected 5 rows, got %d", count)
	}
}

func TestSharedMongo_SeededFixture(t *testing.T) {
	testDB := GetTestMongo(t)
	ctx := context.Background()

	n, err := testDB.Client.Database("shop").Collection("users").CountDocuments(ctx, bson.D{})
	if err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if n != 2 {
		t.Errorf("users: expected 2 documents, got %d", n)
	}
}
