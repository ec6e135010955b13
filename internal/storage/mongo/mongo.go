// Package mongo sinks moderation reports into MongoDB, a best-effort
// side channel that never affects message delivery.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/NuvandaPV/instant/internal/logging"
)

// Report is one {type:"report"} envelope filed by a client against
// another, recorded for later moderator review.
type Report struct {
	Room      string    `bson:"room"`
	ReporterUID string  `bson:"reporter_uid"`
	SubjectUID string   `bson:"subject_uid"`
	Reason    string    `bson:"reason"`
	FiledAt   time.Time `bson:"filed_at"`
}

// Sink wraps a mongo.Client pointed at a single collection.
type Sink struct {
	collection *mongo.Collection
}

// Connect dials uri and returns a Sink for dbName.reports.
func Connect(uri, dbName string) (*Sink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return &Sink{collection: client.Database(dbName).Collection("reports")}, nil
}

// File records a report. Errors are the caller's to log; a failure
// here never blocks or fails the originating request.
func (s *Sink) File(ctx context.Context, r Report) error {
	r.FiledAt = time.Now()
	_, err := s.collection.InsertOne(ctx, r)
	return err
}

// ReportSink adapts a Sink to chat.ReportSink (satisfied structurally,
// without importing the chat package): each call runs File against a
// fresh background context and logs, rather than propagates, failure.
type ReportSink struct {
	Sink   *Sink
	Logger *logging.Logger
}

// FileReport implements chat.ReportSink.
func (r ReportSink) FileReport(room, reporterUID, subjectUID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.Sink.File(ctx, Report{
		Room:        room,
		ReporterUID: reporterUID,
		SubjectUID:  subjectUID,
		Reason:      reason,
	})
	if err != nil {
		r.Logger.Errorf("mongo: file report in room %q: %v", room, err)
	}
}
