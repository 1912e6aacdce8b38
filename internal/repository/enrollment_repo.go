package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// EnrollmentRepo answers the single question the engine asks about
// enrollment: may this user start an attempt on this exam. Consulted
// once at attempt creation, never re-checked mid-attempt.
type EnrollmentRepo interface {
	CanAttempt(ctx context.Context, userID, examID string) (bool, error)
}

type enrollmentRepo struct {
	collection *mongo.Collection
}

// NewEnrollmentRepo creates a new enrollment repository
func NewEnrollmentRepo(db *mongo.Database) EnrollmentRepo {
	return &enrollmentRepo{
		collection: db.Collection("enrollments"),
	}
}

func (r *enrollmentRepo) CanAttempt(ctx context.Context, userID, examID string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"userId": userID,
		"examId": examID,
		"active": true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return count > 0, nil
}
