package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"certexam/internal/model"
)

// ExamRepo is the question bank accessor. GetQuestions returns the
// bank in declared order; callers snapshot it for the lifetime of an
// attempt, so a bank update mid-attempt never changes an in-progress
// attempt's question set.
type ExamRepo interface {
	GetByID(ctx context.Context, examID string) (*model.Exam, error)
	GetQuestions(ctx context.Context, examID string) ([]model.Question, error)
}

type examRepo struct {
	exams     *mongo.Collection
	questions *mongo.Collection
}

// NewExamRepo creates a new exam repository
func NewExamRepo(db *mongo.Database) ExamRepo {
	return &examRepo{
		exams:     db.Collection("exams"),
		questions: db.Collection("questions"),
	}
}

func (r *examRepo) GetByID(ctx context.Context, examID string) (*model.Exam, error) {
	var exam model.Exam
	err := r.exams.FindOne(ctx, bson.M{"_id": examID}).Decode(&exam)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return &exam, nil
}

func (r *examRepo) GetQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := r.questions.Find(ctx, bson.M{"examId": examID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find questions: %w", err)
	}
	defer cursor.Close(ctx)

	var questions []model.Question
	if err := cursor.All(ctx, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return questions, nil
}
