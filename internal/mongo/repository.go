package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"channel-index/internal/domain"
)

const postsCollection = "posts"

var _ domain.PostRepository = (*Repository)(nil)

// Repository implements domain.PostRepository on MongoDB. One document per
// source message; the document is the atomicity boundary, so readers see
// either the pre- or post-upsert version of a post, never a torn one.
type Repository struct {
	client *mongo.Client
	posts  *mongo.Collection
	logger *slog.Logger
}

// NewRepository connects to MongoDB at the given URI, verifies the
// connection, and ensures the indexes the post collection relies on. The
// caller should call Close when the repository is no longer needed.
func NewRepository(ctx context.Context, uri, database string, logger *slog.Logger) (*Repository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	r := &Repository{
		client: client,
		posts:  client.Database(database).Collection(postsCollection),
		logger: logger,
	}

	if err := r.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return r, nil
}

// ensureIndexes creates the uniqueness constraint on the source id and the
// full-text projection over title and raw text.
func (r *Repository) ensureIndexes(ctx context.Context) error {
	_, err := r.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "source_id.chat_id", Value: 1},
				{Key: "source_id.message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "title", Value: "text"},
				{Key: "raw_text", Value: "text"},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Ping verifies the storage connection. Used by health checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Upsert stores the post, replacing any previous version for the same source
// message in one atomic write. Content fields are fully replaced; the
// lastAccessed timestamp is only seeded on first insert, so an edit at the
// source does not erase read history.
func (r *Repository) Upsert(ctx context.Context, post *domain.Post) error {
	if !post.SourceID.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrMalformedKey, post.SourceID)
	}

	update := bson.M{
		"$set": bson.M{
			"source_id":  post.SourceID,
			"title":      post.Title,
			"raw_text":   post.RawText,
			"links":      post.Links,
			"chat_title": post.ChatTitle,
			"timestamp":  post.Timestamp,
		},
		"$setOnInsert": bson.M{
			"last_accessed": time.Now().UTC(),
		},
	}

	_, err := r.posts.UpdateOne(ctx, byID(post.SourceID), update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Cannot happen while the upsert is keyed and atomic; if storage
			// reports it anyway, surface it loudly instead of swallowing.
			r.logger.Error("duplicate key conflict on upsert", "source_id", post.SourceID, "error", err)
			return fmt.Errorf("duplicate key for %s: %w", post.SourceID, err)
		}
		return storageErr("upsert post", err)
	}
	return nil
}

// GetByID fetches a post by source id, nil when absent. A hit schedules a
// lastAccessed update without blocking the caller.
func (r *Repository) GetByID(ctx context.Context, id domain.SourceID) (*domain.Post, error) {
	var post domain.Post
	err := r.posts.FindOne(ctx, byID(id)).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get post", err)
	}

	r.touchLastAccessed(id)
	return &post, nil
}

// touchLastAccessed records the read asynchronously. Failures are logged and
// otherwise ignored; the field is informational only.
func (r *Repository) touchLastAccessed(id domain.SourceID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := r.posts.UpdateOne(ctx, byID(id), bson.M{
			"$set": bson.M{"last_accessed": time.Now().UTC()},
		})
		if err != nil {
			r.logger.Warn("failed to update last_accessed", "source_id", id, "error", err)
		}
	}()
}

// FindMatching returns every post whose title or raw text contains at least
// one of the tokens, case-insensitively. The full candidate set is returned;
// the ranker scores and truncates above the repository.
func (r *Repository) FindMatching(ctx context.Context, tokens []string) ([]domain.Post, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	clauses := make([]bson.M, 0, len(tokens)*2)
	for _, tok := range tokens {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(tok), Options: "i"}
		clauses = append(clauses,
			bson.M{"title": re},
			bson.M{"raw_text": re},
		)
	}

	cursor, err := r.posts.Find(ctx, bson.M{"$or": clauses})
	if err != nil {
		return nil, storageErr("find posts", err)
	}
	defer cursor.Close(ctx)

	var posts []domain.Post
	for cursor.Next(ctx) {
		var p domain.Post
		if err := cursor.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := cursor.Err(); err != nil {
		return nil, storageErr("iterate posts", err)
	}

	return posts, nil
}

// MaxMessageID returns the highest stored message id for a chat, 0 when the
// chat has no stored posts.
func (r *Repository) MaxMessageID(ctx context.Context, chatID int64) (int64, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "source_id.message_id", Value: -1}}).
		SetProjection(bson.M{"source_id": 1})

	var post domain.Post
	err := r.posts.FindOne(ctx, bson.M{"source_id.chat_id": chatID}, opts).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("max message id", err)
	}

	return post.SourceID.MessageID, nil
}

func byID(id domain.SourceID) bson.M {
	return bson.M{
		"source_id.chat_id":    id.ChatID,
		"source_id.message_id": id.MessageID,
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %s", op, domain.ErrStorageUnavailable, err)
}
