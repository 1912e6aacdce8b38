package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"certexam/internal/model"
)

// AttemptRepo is the durable attempt store. SaveAnswers carries the
// full latest snapshot so writes are idempotent and safe to replay.
// FinalizeSubmission persists the submitted status together with the
// score result in one document update; it reports whether this call
// won the transition out of in_progress.
type AttemptRepo interface {
	Create(ctx context.Context, attempt *model.Attempt) error
	GetByID(ctx context.Context, attemptID string) (*model.Attempt, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Attempt, error)
	SetInProgress(ctx context.Context, attemptID string) error
	SaveAnswers(ctx context.Context, attemptID string, snap *model.AnswerSnapshot) error
	FinalizeSubmission(ctx context.Context, attemptID string, result *model.ScoreResult, submittedAt time.Time) (bool, error)
}

type attemptRepo struct {
	collection *mongo.Collection
}

// NewAttemptRepo creates a new attempt repository
func NewAttemptRepo(db *mongo.Database) AttemptRepo {
	return &attemptRepo{
		collection: db.Collection("attempts"),
	}
}

func (r *attemptRepo) Create(ctx context.Context, attempt *model.Attempt) error {
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = time.Now()
	}
	if _, err := r.collection.InsertOne(ctx, attempt); err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (r *attemptRepo) GetByID(ctx context.Context, attemptID string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.collection.FindOne(ctx, bson.M{"_id": attemptID}).Decode(&attempt)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

func (r *attemptRepo) ListByUser(ctx context.Context, userID string) ([]*model.Attempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var attempts []*model.Attempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode attempts: %w", err)
	}
	return attempts, nil
}

// SetInProgress moves not_started -> in_progress. The status filter
// keeps the transition monotonic: it never resurrects a submitted
// attempt.
func (r *attemptRepo) SetInProgress(ctx context.Context, attemptID string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": attemptID, "status": model.AttemptNotStarted},
		bson.M{"$set": bson.M{"status": model.AttemptInProgress}},
	)
	if err != nil {
		return fmt.Errorf("failed to start attempt: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("attempt %s not in not_started state", attemptID)
	}
	return nil
}

func (r *attemptRepo) SaveAnswers(ctx context.Context, attemptID string, snap *model.AnswerSnapshot) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": attemptID, "status": model.AttemptInProgress},
		bson.M{"$set": bson.M{
			"answers":              snap.Answers,
			"flags":                snap.Flags,
			"currentQuestionIndex": snap.CurrentQuestionIndex,
			"timeRemainingSeconds": snap.TimeRemainingSeconds,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to save answers: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("attempt %s not in progress", attemptID)
	}
	return nil
}

// FinalizeSubmission is the single winner gate at the storage level:
// the filter matches only while the attempt is still in_progress, so
// exactly one caller flips it to submitted with the result embedded.
func (r *attemptRepo) FinalizeSubmission(ctx context.Context, attemptID string, result *model.ScoreResult, submittedAt time.Time) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": attemptID, "status": model.AttemptInProgress},
		bson.M{"$set": bson.M{
			"status":      model.AttemptSubmitted,
			"submittedAt": submittedAt,
			"result":      result,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize submission: %w", err)
	}
	return res.MatchedCount == 1, nil
}
