package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/initya/InstaAutReel/server"
)

// RunStore keeps a record of every reel run in MongoDB. The in-memory
// registry stays authoritative for live status; this is the durable
// history.
type RunStore struct {
	client *mongo.Client
	runs   *mongo.Collection
}

// Connect opens the MongoDB connection and pings it.
func Connect(ctx context.Context, uri, dbName string) (*RunStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	database := client.Database(dbName)
	return &RunStore{
		client: client,
		runs:   database.Collection("reel_runs"),
	}, nil
}

func (s *RunStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// SaveRun inserts the initial record for a submitted job.
func (s *RunStore) SaveRun(ctx context.Context, job server.Job) error {
	_, err := s.runs.InsertOne(ctx, bson.M{
		"job_id":     job.ID,
		"status":     job.Status,
		"audio_path": job.AudioPath,
		"keywords":   job.Keywords,
		"created_at": job.CreatedAt,
	})
	return err
}

// UpdateRun writes the terminal state of a job.
func (s *RunStore) UpdateRun(ctx context.Context, job server.Job) error {
	updateData := bson.M{
		"status":     job.Status,
		"updated_at": time.Now(),
	}
	if job.Error != "" {
		updateData["error_message"] = job.Error
	}
	if job.CompletedAt != nil {
		updateData["completed_at"] = job.CompletedAt
	}
	if job.Reel != nil {
		updateData["video_path"] = job.Reel.VideoPath
		updateData["caption_path"] = job.Reel.CaptionPath
		updateData["captions_burned"] = job.Reel.CaptionsBurned
		updateData["duration"] = job.Reel.Duration
	}

	_, err := s.runs.UpdateOne(ctx,
		bson.M{"job_id": job.ID},
		bson.M{"$set": updateData},
	)
	return err
}
