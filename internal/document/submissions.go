package document

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Submission is one artifact upload, kept even after the task's file is
// replaced by a later upload.
type Submission struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TaskID      string             `bson:"task_id" json:"task_id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	FileName    string             `bson:"file_name" json:"file_name"`
	ObjectKey   string             `bson:"object_key" json:"object_key"`
	Bucket      string             `bson:"bucket" json:"bucket"`
	Size        int64              `bson:"size" json:"size"`
	Checksum    string             `bson:"checksum,omitempty" json:"checksum,omitempty"`
	SubmittedAt time.Time          `bson:"submitted_at" json:"submitted_at"`
}

type SubmissionLog interface {
	Record(ctx context.Context, s Submission) (Submission, error)
	ListByTask(ctx context.Context, taskID string) ([]Submission, error)
}

type mongoSubmissionLog struct {
	collection *mongo.Collection
}

func NewSubmissionLog(collection *mongo.Collection) SubmissionLog {
	return &mongoSubmissionLog{collection: collection}
}

func (l *mongoSubmissionLog) Record(ctx context.Context, s Submission) (Submission, error) {
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now().UTC()
	}
	res, err := l.collection.InsertOne(ctx, s)
	if err != nil {
		return Submission{}, err
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return Submission{}, errors.New("unexpected insert id type")
	}
	s.ID = id
	return s, nil
}

// ListByTask returns the submissions of a task, newest first.
func (l *mongoSubmissionLog) ListByTask(ctx context.Context, taskID string) ([]Submission, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: -1}})
	cur, err := l.collection.Find(ctx, bson.M{"task_id": taskID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]Submission, 0)
	for cur.Next(ctx) {
		var s Submission
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureIndexes creates the task_id/submitted_at index used by ListByTask.
func EnsureIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "task_id", Value: 1}, {Key: "submitted_at", Value: -1}},
	})
	return err
}
