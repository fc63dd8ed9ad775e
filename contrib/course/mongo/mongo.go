// Package mongo stores the course registry in MongoDB, one document per
// course keyed by its name.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sweetpotato0/sensei/course"
	serrors "github.com/sweetpotato0/sensei/errors"
)

// Registry implements course.Registry using MongoDB
type Registry struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

var _ course.Registry = (*Registry)(nil)

// Config holds MongoDB connection configuration
type Config struct {
	URI        string
	Database   string
	Collection string
}

// DefaultConfig returns default MongoDB configuration
func DefaultConfig() *Config {
	return &Config{
		URI:        "mongodb://localhost:27017",
		Database:   "sensei",
		Collection: "courses",
	}
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, config *Config) (*Registry, error) {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Registry{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create implements course.Registry.
func (r *Registry) Create(ctx context.Context, c course.Course) error {
	if err := course.ValidateName(c.Name); err != nil {
		return err
	}
	now := r.now()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.VideoIDs == nil {
		c.VideoIDs = []string{}
	}
	if _, err := r.collection.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("course %s: %w", c.Name, serrors.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create course: %w", err)
	}
	return nil
}

// Get implements course.Registry.
func (r *Registry) Get(ctx context.Context, name string) (*course.Course, error) {
	var c course.Course
	if err := r.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("course %s: %w", name, serrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}

// List implements course.Registry.
func (r *Registry) List(ctx context.Context) ([]course.Course, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer cursor.Close(ctx)

	courses := []course.Course{}
	if err := cursor.All(ctx, &courses); err != nil {
		return nil, fmt.Errorf("failed to decode courses: %w", err)
	}
	return courses, nil
}

// AddVideo implements course.Registry with a single upsert.
func (r *Registry) AddVideo(ctx context.Context, name, videoID string) error {
	if err := course.ValidateName(name); err != nil {
		return err
	}
	now := r.now()
	update := bson.M{
		"$addToSet":    bson.M{"video_ids": videoID},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": name}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to add video to course: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (r *Registry) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
