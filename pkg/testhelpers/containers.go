// Package testhelpers starts throwaway database containers for integration
// tests. Each container is created once per test run and shared; tests that
// mutate seeded data should scope themselves to their own rows or database.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	postgresImage = "postgres:16-alpine"
	mysqlImage    = "mysql:8.0"
	mongoImage    = "mongo:7"

	startupTimeout = 120 * time.Second
)

// TestPostgres holds a shared PostgreSQL container seeded with the shop
// fixture schema.
type TestPostgres struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedPostgres     *TestPostgres
	sharedPostgresOnce sync.Once
	sharedPostgresErr  error
)

// GetTestPostgres returns a shared PostgreSQL container for integration
// tests. The container is created once and reused across the run.
func GetTestPostgres(t *testing.T) *TestPostgres {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresErr = setupPostgres()
	})
	if sharedPostgresErr != nil {
		t.Fatalf("Failed to setup postgres container: %v", sharedPostgresErr)
	}
	return sharedPostgres
}

func setupPostgres() (*TestPostgres, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "shop",
			"POSTGRES_USER":     "datapilot",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(startupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://datapilot:test_password@%s:%s/shop?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := waitFor(func() error { return pool.Ping(ctx) }); err != nil {
		return nil, fmt.Errorf("postgres never became ready: %w", err)
	}
	if err := seedPostgres(ctx, pool); err != nil {
		return nil, fmt.Errorf("seed postgres: %w", err)
	}

	return &TestPostgres{Container: container, Pool: pool, ConnStr: connStr}, nil
}

func seedPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE users (
			id SERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT,
			password_hash TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE orders (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			status TEXT NOT NULL,
			total NUMERIC(10,2) NOT NULL,
			placed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`INSERT INTO users (email, name, password_hash) VALUES
			('alice@example.com', 'Alice', 'x'),
			('bob@example.com', 'Bob', 'x'),
			('carol@example.com', 'Carol', 'x')`,
		`INSERT INTO orders (user_id, status, total) VALUES
			(1, 'shipped', 120.50),
			(1, 'open', 19.99),
			(2, 'shipped', 42.00),
			(3, 'cancelled', 7.25),
			(3, 'open', 310.00)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// TestMySQL holds a shared MySQL container seeded with the shop fixture
// schema.
type TestMySQL struct {
	Container testcontainers.Container
	DB        *sql.DB
	ConnStr   string
}

var (
	sharedMySQL     *TestMySQL
	sharedMySQLOnce sync.Once
	sharedMySQLErr  error
)

// GetTestMySQL returns a shared MySQL container for integration tests.
func GetTestMySQL(t *testing.T) *TestMySQL {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMySQLOnce.Do(func() {
		sharedMySQL, sharedMySQLErr = setupMySQL()
	})
	if sharedMySQLErr != nil {
		t.Fatalf("Failed to setup mysql container: %v", sharedMySQLErr)
	}
	return sharedMySQL
}

func setupMySQL() (*TestMySQL, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        mysqlImage,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "test_password",
			"MYSQL_DATABASE":      "shop",
		},
		WaitingFor: wait.ForLog("ready for connections").
			WithOccurrence(2).
			WithStartupTimeout(startupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start mysql container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		return nil, fmt.Errorf("get container port: %w", err)
	}

	// URL form matches what the engine receives from callers; the DSN for
	// database/sql is derived separately.
	connStr := fmt.Sprintf("mysql://root:test_password@%s:%s/shop", host, port.Port())
	dsn := fmt.Sprintf("root:test_password@tcp(%s:%s)/shop?parseTime=true", host, port.Port())

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	if err := waitFor(func() error { return db.PingContext(ctx) }); err != nil {
		return nil, fmt.Errorf("mysql never became ready: %w", err)
	}
	if err := seedMySQL(ctx, db); err != nil {
		return nil, fmt.Errorf("seed mysql: %w", err)
	}

	return &TestMySQL{Container: container, DB: db, ConnStr: connStr}, nil
}

func seedMySQL(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255),
			password_hash VARCHAR(255),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE orders (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id INT NOT NULL,
			status VARCHAR(32) NOT NULL,
			total DECIMAL(10,2) NOT NULL,
			placed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_orders_user FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`INSERT INTO users (email, name, password_hash) VALUES
			('alice@example.com', 'Alice', 'x'),
			('bob@example.com', 'Bob', 'x'),
			('carol@example.com', 'Carol', 'x')`,
		`INSERT INTO orders (user_id, status, total) VALUES
			(1, 'shipped', 120.50),
			(1, 'open', 19.99),
			(2, 'shipped', 42.00),
			(3, 'cancelled', 7.25),
			(3, 'open', 310.00)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// TestMongo holds a shared MongoDB container seeded with the shop fixture
// collections.
type TestMongo struct {
	Container testcontainers.Container
	Client    *mongodriver.Client
	ConnStr   string
}

var (
	sharedMongo     *TestMongo
	sharedMongoOnce sync.Once
	sharedMongoErr  error
)

// GetTestMongo returns a shared MongoDB container for integration tests.
func GetTestMongo(t *testing.T) *TestMongo {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMongoOnce.Do(func() {
		sharedMongo, sharedMongoErr = setupMongo()
	})
	if sharedMongoErr != nil {
		t.Fatalf("Failed to setup mongo container: %v", sharedMongoErr)
	}
	return sharedMongo
}

func setupMongo() (*TestMongo, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        mongoImage,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForLog("Waiting for connections").
			WithStartupTimeout(startupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start mongo container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		return nil, fmt.Errorf("get container port: %w", err)
	}

	connStr := fmt.Sprintf("mongodb://%s:%s/shop", host, port.Port())

	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(connStr))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := waitFor(func() error { return client.Ping(ctx, nil) }); err != nil {
		return nil, fmt.Errorf("mongo never became ready: %w", err)
	}
	if err := seedMongo(ctx, client); err != nil {
		return nil, fmt.Errorf("seed mongo: %w", err)
	}

	return &TestMongo{Container: container, Client: client, ConnStr: connStr}, nil
}

func seedMongo(ctx context.Context, client *mongodriver.Client) error {
	db := client.Database("shop")

	alice := primitive.NewObjectID()
	bob := primitive.NewObjectID()

	// bson.D keeps field order stable so schema sampling sees the same
	// layout on every run.
	users := []any{
		bson.D{{Key: "_id", Value: alice}, {Key: "email", Value: "alice@example.com"},
			{Key: "name", Value: "Alice"}, {Key: "passwordHash", Value: "x"},
			{Key: "age", Value: int32(34)}, {Key: "active", Value: true},
			{Key: "tags", Value: bson.A{"vip", "beta"}}},
		bson.D{{Key: "_id", Value: bob}, {Key: "email", Value: "bob@example.com"},
			{Key: "name", Value: "Bob"}, {Key: "passwordHash", Value: "x"},
			{Key: "age", Value: int32(29)}, {Key: "active", Value: false},
			{Key: "tags", Value: bson.A{}}},
	}
	if _, err := db.Collection("users").InsertMany(ctx, users); err != nil {
		return err
	}

	now := time.Now().UTC()
	orders := []any{
		bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "userId", Value: alice},
			{Key: "status", Value: "shipped"}, {Key: "total", Value: 120.50},
			{Key: "placedAt", Value: primitive.NewDateTimeFromTime(now.AddDate(0, 0, -3))}},
		bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "userId", Value: alice},
			{Key: "status", Value: "open"}, {Key: "total", Value: 19.99},
			{Key: "placedAt", Value: primitive.NewDateTimeFromTime(now.AddDate(0, 0, -1))}},
		bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "userId", Value: bob},
			{Key: "status", Value: "shipped"}, {Key: "total", Value: 42.00},
			{Key: "placedAt", Value: primitive.NewDateTimeFromTime(now.AddDate(0, 0, -10))}},
	}
	if _, err := db.Collection("orders").InsertMany(ctx, orders); err != nil {
		return err
	}

	return nil
}

// waitFor polls fn until it succeeds or the attempts are exhausted.
func waitFor(fn func() error) error {
	var err error
	for i := 0; i < 20; i++ {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return err
}
