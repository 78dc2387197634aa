package content

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linkup-social/flowkit/workflows"
)

// MongoContentStore implements workflows.ContentStore over the social app's
// MongoDB collections.
type MongoContentStore struct {
	users       *mongo.Collection
	stories     *mongo.Collection
	connections *mongo.Collection
	messages    *mongo.Collection
}

var _ workflows.ContentStore = (*MongoContentStore)(nil)

// NewMongoContentStore creates a content store over the given database.
// dbName defaults to "linkup" if empty.
func NewMongoContentStore(client *mongo.Client, dbName string) *MongoContentStore {
	if dbName == "" {
		dbName = "linkup"
	}
	db := client.Database(dbName)
	return &MongoContentStore{
		users:       db.Collection("users"),
		stories:     db.Collection("stories"),
		connections: db.Collection("connections"),
		messages:    db.Collection("messages"),
	}
}

func (s *MongoContentStore) StoryExists(ctx context.Context, storyID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := s.stories.CountDocuments(ctx, bson.M{"_id": storyID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MongoContentStore) DeleteStory(ctx context.Context, storyID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// DeleteOne on an absent document matches zero and is not an error,
	// which is exactly the duplicate-invocation behavior the workflows need.
	_, err := s.stories.DeleteOne(ctx, bson.M{"_id": storyID})
	return err
}

func (s *MongoContentStore) ConnectionStatus(ctx context.Context, requestID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc struct {
		Status string `bson:"status"`
	}
	err := s.connections.FindOne(ctx, bson.M{"_id": requestID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", workflows.ErrNotFound
		}
		return "", err
	}
	return doc.Status, nil
}

func (s *MongoContentStore) CountUnseenMessages(ctx context.Context, conversationID string, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := s.messages.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"seen":            false,
		"sent_at":         bson.M{"$gte": since},
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *MongoContentStore) ApplyUserProfileChange(ctx context.Context, userID string, changes map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{}
	for k, v := range changes {
		set[k] = v
	}
	set["updated_at"] = time.Now()

	_, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set},
		options.Update().SetUpsert(true))
	return err
}

func (s *MongoContentStore) CascadeDeleteUserContent(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Each delete is idempotent on its own; a partially completed cascade
	// converges when the step retries.
	if _, err := s.stories.DeleteMany(ctx, bson.M{"author_id": userID}); err != nil {
		return err
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"sender_id": userID}); err != nil {
		return err
	}
	if _, err := s.connections.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"requester_id": userID},
		bson.M{"recipient_id": userID},
	}}); err != nil {
		return err
	}
	_, err := s.users.DeleteOne(ctx, bson.M{"_id": userID})
	return err
}

func (s *MongoContentStore) User(ctx context.Context, userID string) (*workflows.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc struct {
		ID       string `bson:"_id"`
		FullName string `bson:"full_name"`
		Email    string `bson:"email"`
	}
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, workflows.ErrNotFound
		}
		return nil, err
	}
	return &workflows.UserProfile{
		ID:       doc.ID,
		FullName: doc.FullName,
		Email:    doc.Email,
	}, nil
}
