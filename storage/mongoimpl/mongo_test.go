package mongoimpl

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// setupMongo starts a throwaway mongo:7 container via the testcontainers
// mongodb module, matching the docker-not-available skip idiom of
// registry/store/mongo/mongo_test.go but using the purpose-built module
// instead of a hand-rolled GenericContainer request.
func setupMongo(t *testing.T) *mongo.Client {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Skipf("docker not available, skipping mongo integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	require.NoError(t, client.Ping(ctx, nil))
	return client
}

func TestMongoStorePutGetRoundTrip(t *testing.T) {
	client := setupMongo(t)
	ctx := context.Background()
	s := New(Options{Client: client, Database: "kernelspell_test", CollectionPrefix: "ns_"})

	require.NoError(t, s.Put(ctx, "ns", "k", []byte("v1")))

	v, ok, err := s.Get(ctx, "ns", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)
}

func TestMongoStorePersistsAcrossRecreation(t *testing.T) {
	client := setupMongo(t)
	ctx := context.Background()
	opts := Options{Client: client, Database: "kernelspell_test", CollectionPrefix: "persist_"}

	s1 := New(opts)
	for i := 0; i < 5; i++ {
		require.NoError(t, s1.Put(ctx, "ns", fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("v%d", i))))
	}

	s2 := New(opts)
	keys, err := s2.List(ctx, "ns", "")
	require.NoError(t, err)
	require.Len(t, keys, 5)

	v, ok, err := s2.Get(ctx, "ns", "k2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
}

func TestMongoStoreListPrefixAndClear(t *testing.T) {
	client := setupMongo(t)
	ctx := context.Background()
	s := New(Options{Client: client, Database: "kernelspell_test", CollectionPrefix: "list_"})

	require.NoError(t, s.Put(ctx, "ns", "a:1", []byte("1")))
	require.NoError(t, s.Put(ctx, "ns", "a:2", []byte("2")))
	require.NoError(t, s.Put(ctx, "ns", "b:1", []byte("3")))

	keys, err := s.List(ctx, "ns", "a:")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a:1", "a:2"}, keys)

	require.NoError(t, s.Clear(ctx, "ns"))
	keys, err = s.List(ctx, "ns", "")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestMongoStoreDeleteAbsentKeyIsNotError(t *testing.T) {
	client := setupMongo(t)
	ctx := context.Background()
	s := New(Options{Client: client, Database: "kernelspell_test", CollectionPrefix: "del_"})

	require.NoError(t, s.Delete(ctx, "ns", "missing"))
}
