// Package mongoimpl is a MongoDB-backed storage.Backend, for deployments
// that need durability across process restarts (spec §2 "persistent
// implementations plug in"). It is rewritten from the client-construction
// and collection-naming idiom of features/session/mongo/clients/mongo/client.go
// and features/memory/mongo/store.go: one collection per namespace, documents
// keyed by the logical storage key, bounded per-operation timeouts.
package mongoimpl

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lexlapax/kernelspell/storage"
)

const defaultOpTimeout = 5 * time.Second

// Options configures the Mongo-backed store.
type Options struct {
	// Client is an already-connected Mongo client. Required.
	Client *mongo.Client
	// Database selects the database holding one collection per namespace.
	Database string
	// CollectionPrefix is prepended to the namespace to derive the
	// collection name, avoiding collisions with unrelated collections in a
	// shared database.
	CollectionPrefix string
	// OpTimeout bounds every individual operation. Defaults to 5s.
	OpTimeout time.Duration
}

// Store is a MongoDB-backed storage.Backend.
type Store struct {
	db      *mongo.Database
	prefix  string
	timeout time.Duration
}

var _ storage.Backend = (*Store)(nil)

// document is the on-disk shape: _id is the storage key, Value the raw bytes.
type document struct {
	ID    string `bson:"_id"`
	Value []byte `bson:"value"`
}

// New constructs a Mongo-backed Store from opts.
func New(opts Options) *Store {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Store{
		db:      opts.Client.Database(opts.Database),
		prefix:  opts.CollectionPrefix,
		timeout: timeout,
	}
}

func (s *Store) collection(namespace string) *mongo.Collection {
	return s.db.Collection(s.prefix + namespace)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc document
	err := s.collection(namespace).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc.Value, true, nil
}

func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.collection(namespace).ReplaceOne(
		ctx,
		bson.M{"_id": key},
		document{ID: key, Value: value},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.collection(namespace).DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (s *Store) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.collection(namespace).Find(ctx, bson.M{
		"_id": bson.M{"$regex": "^" + regexEscape(prefix)},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []string
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.ID)
	}
	return out, cur.Err()
}

func (s *Store) Clear(ctx context.Context, namespace string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.collection(namespace).Drop(ctx)
}

// regexEscape escapes Mongo regex metacharacters in a literal prefix match.
func regexEscape(s string) string {
	special := `\.+*?()|[]{}^$`
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if containsByte(special, c) {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}
