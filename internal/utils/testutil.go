package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var loadEnvOnce sync.Once

// loadTestEnv reads the project root .env once so integration tests can pick
// up database URLs without exporting them.
func loadTestEnv() {
	loadEnvOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		root := filepath.Join(filepath.Dir(filename), "..", "..")
		if err := godotenv.Load(filepath.Join(root, ".env")); err != nil {
			_ = godotenv.Load()
		}
	})
}

// PostgresTestDSN returns TEST_DATABASE_URL or skips the test.
func PostgresTestDSN(t *testing.T) string {
	t.Helper()
	loadTestEnv()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	return dsn
}

// SetupTestMongo connects to MONGO_URI, drops the given collections and
// returns the database. The test is skipped when MONGO_URI is not set.
func SetupTestMongo(t *testing.T, dbName string, collections ...string) (*mongo.Client, *mongo.Database) {
	t.Helper()
	loadTestEnv()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	require.NoError(t, err, "Failed to connect to MongoDB")
	db := client.Database(dbName)
	for _, c := range collections {
		_ = db.Collection(c).Drop(context.Background())
	}
	return client, db
}
