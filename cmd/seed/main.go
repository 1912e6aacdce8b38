package main

import (
	"certexam/internal/model"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "certexam"
	}
	db := client.Database(dbName)

	examID := uuid.New().String()
	exam := model.Exam{
		ID:                         examID,
		Title:                      "Cloud Practitioner Certification",
		PassingThresholdPercentage: 70,
		TimeLimitSeconds:           5400,
		KnowledgeAreas: []model.KnowledgeArea{
			{ID: "cloud-concepts", Name: "Cloud Concepts", WeightPercentage: 26},
			{ID: "security", Name: "Security and Compliance", WeightPercentage: 25},
			{ID: "technology", Name: "Technology", WeightPercentage: 33},
			{ID: "billing", Name: "Billing and Pricing", WeightPercentage: 16},
		},
	}

	questions := []model.Question{
		{
			ID:                 uuid.New().String(),
			ExamID:             examID,
			Position:           1,
			Text:               "Which benefit of cloud computing lets a team provision compute capacity without forecasting demand months in advance?",
			Difficulty:         model.DifficultyEasy,
			KnowledgeAreaID:    "cloud-concepts",
			RequiredSelections: 1,
			Options: []model.Option{
				{ID: uuid.New().String(), Text: "Elasticity", IsCorrect: true, Explanation: "Elastic capacity grows and shrinks with demand, so no long-range forecast is needed."},
				{ID: uuid.New().String(), Text: "Fault tolerance", Explanation: "Fault tolerance is about surviving component failure, not capacity planning."},
				{ID: uuid.New().String(), Text: "Data residency", Explanation: "Data residency concerns where data is stored, not how capacity is provisioned."},
				{ID: uuid.New().String(), Text: "Vendor lock-in", Explanation: "Lock-in is a risk of cloud adoption, not a benefit."},
			},
		},
		{
			ID:                 uuid.New().String(),
			ExamID:             examID,
			Position:           2,
			Text:               "Which TWO practices improve the security posture of a cloud account's root user?",
			Difficulty:         model.DifficultyMedium,
			KnowledgeAreaID:    "security",
			RequiredSelections: 2,
			Options: []model.Option{
				{ID: uuid.New().String(), Text: "Enable multi-factor authentication", IsCorrect: true, Explanation: "MFA blocks credential-stuffing attacks against the root user."},
				{ID: uuid.New().String(), Text: "Stop using the root user for daily work", IsCorrect: true, Explanation: "Daily work belongs in scoped identities, keeping root credentials cold."},
				{ID: uuid.New().String(), Text: "Share the root password across the operations team", Explanation: "Shared credentials destroy accountability and widen the blast radius."},
				{ID: uuid.New().String(), Text: "Embed the root access key in deployment scripts", Explanation: "Embedded long-lived keys leak through source control."},
			},
		},
		{
			ID:                 uuid.New().String(),
			ExamID:             examID,
			Position:           3,
			Text:               "A workload must keep running when an entire data center is lost. Which deployment choice addresses this?",
			Difficulty:         model.DifficultyMedium,
			KnowledgeAreaID:    "technology",
			RequiredSelections: 1,
			Options: []model.Option{
				{ID: uuid.New().String(), Text: "Run instances across multiple availability zones", IsCorrect: true, Explanation: "Zone-spread instances survive the loss of any single facility."},
				{ID: uuid.New().String(), Text: "Run larger instances in one zone", Explanation: "Vertical scaling does nothing for facility loss."},
				{ID: uuid.New().String(), Text: "Enable detailed monitoring", Explanation: "Monitoring observes failure, it does not prevent downtime."},
				{ID: uuid.New().String(), Text: "Use reserved pricing", Explanation: "Pricing models have no effect on availability."},
			},
		},
		{
			ID:                 uuid.New().String(),
			ExamID:             examID,
			Position:           4,
			Text:               "Which pricing model offers the largest discount for a workload that can tolerate interruption?",
			Difficulty:         model.DifficultyHard,
			KnowledgeAreaID:    "billing",
			RequiredSelections: 1,
			Options: []model.Option{
				{ID: uuid.New().String(), Text: "Spot capacity", IsCorrect: true, Explanation: "Spare capacity is the cheapest, at the cost of possible reclamation."},
				{ID: uuid.New().String(), Text: "On-demand", Explanation: "On-demand is the most flexible but least discounted model."},
				{ID: uuid.New().String(), Text: "One-year reservation", Explanation: "Reservations discount steady workloads, not interruptible ones."},
				{ID: uuid.New().String(), Text: "Dedicated hosts", Explanation: "Dedicated hardware is the most expensive option."},
			},
		},
	}

	if _, err := db.Collection("exams").InsertOne(ctx, exam); err != nil {
		log.Fatalf("Failed to insert exam: %v", err)
	}
	for _, q := range questions {
		if _, err := db.Collection("questions").InsertOne(ctx, q); err != nil {
			log.Fatalf("Failed to insert question %d: %v", q.Position, err)
		}
	}

	// Enroll a demo candidate so the exam is attemptable out of the box.
	userID := os.Getenv("SEED_USER_ID")
	if userID == "" {
		userID = "candidate_demo"
	}
	enrollment := bson.M{
		"_id":    uuid.New().String(),
		"userId": userID,
		"examId": examID,
		"active": true,
	}
	if _, err := db.Collection("enrollments").InsertOne(ctx, enrollment); err != nil {
		log.Fatalf("Failed to insert enrollment: %v", err)
	}

	fmt.Println("Seeded exam:", examID)
	fmt.Println("Enrolled user:", userID)
	fmt.Printf("Questions: %d\n", len(questions))
}
