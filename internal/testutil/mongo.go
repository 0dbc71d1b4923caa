// Package testutil holds helpers for tests that need a live MongoDB.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/campverse/backend/pkg/database"
)

// MongoURIEnv names the variable that enables repository tests.
const MongoURIEnv = "TEST_MONGODB_URI"

// MongoDB returns a throwaway database dropped when the test ends. The test is skipped
// when TEST_MONGODB_URI is not set.
func MongoDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv(MongoURIEnv)
	if uri == "" {
		t.Skipf("%s not set, skipping MongoDB repository test", MongoURIEnv)
	}
	ctx := context.Background()
	client, err := database.NewMongoClient(ctx, uri, zap.NewNop())
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	db := client.Database(fmt.Sprintf("campverse_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}
