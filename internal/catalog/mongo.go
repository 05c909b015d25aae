package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	locksCollection = "locks"
	pingsCollection = "lockpings"
)

// MongoCatalog is a MongoDB implementation of Catalog. The conditional grab
// is a single findOneAndUpdate upsert: if the lock document exists and is
// held, the upsert collides on _id and the duplicate-key error is reported
// as clean contention.
type MongoCatalog struct {
	locks *mongo.Collection
	pings *mongo.Collection
}

// mongoLockDoc is the wire form of a lock record. The session id is stored
// as its string form so records stay readable in the shell.
type mongoLockDoc struct {
	Name      string    `bson:"_id"`
	SessionID string    `bson:"ts"`
	State     string    `bson:"state"`
	Who       string    `bson:"who"`
	ProcessID string    `bson:"process"`
	When      time.Time `bson:"when"`
	Why       string    `bson:"why"`
}

type mongoPingDoc struct {
	ProcessID string    `bson:"_id"`
	LastPing  time.Time `bson:"ping"`
}

// NewMongoCatalog creates a catalog over the given database, using the
// locks and lockpings collections.
func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{
		locks: db.Collection(locksCollection),
		pings: db.Collection(pingsCollection),
	}
}

// GrabLock implements Catalog.GrabLock.
func (c *MongoCatalog) GrabLock(ctx context.Context, name string, sessionID uuid.UUID, who, processID string, when time.Time, why string) (bool, error) {
	filter := bson.M{"_id": name, "state": StateUnlocked}
	update := bson.M{"$set": bson.M{
		"ts":      sessionID.String(),
		"state":   StateLocked,
		"who":     who,
		"process": processID,
		"when":    when,
		"why":     why,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc mongoLockDoc
	err := c.locks.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// The document exists and is held by another session.
			return false, nil
		}
		return false, fmt.Errorf("grab lock %q: %w", name, err)
	}
	return true, nil
}

// Unlock implements Catalog.Unlock. Matching zero documents is success:
// the lock was already released or overtaken.
func (c *MongoCatalog) Unlock(ctx context.Context, sessionID uuid.UUID) error {
	filter := bson.M{"ts": sessionID.String(), "state": StateLocked}
	update := bson.M{"$set": bson.M{"state": StateUnlocked}}

	if _, err := c.locks.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("unlock session %s: %w", sessionID, err)
	}
	return nil
}

// GetLockBySession implements Catalog.GetLockBySession.
func (c *MongoCatalog) GetLockBySession(ctx context.Context, sessionID uuid.UUID) (*LockRecord, error) {
	var doc mongoLockDoc
	err := c.locks.FindOne(ctx, bson.M{"ts": sessionID.String()}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrLockNotFound
		}
		return nil, fmt.Errorf("get lock by session %s: %w", sessionID, err)
	}

	sid, err := uuid.Parse(doc.SessionID)
	if err != nil {
		return nil, fmt.Errorf("parse session id %q: %w", doc.SessionID, err)
	}
	return &LockRecord{
		Name:      doc.Name,
		SessionID: sid,
		State:     doc.State,
		Who:       doc.Who,
		ProcessID: doc.ProcessID,
		When:      doc.When,
		Why:       doc.Why,
	}, nil
}

// Ping implements Catalog.Ping.
func (c *MongoCatalog) Ping(ctx context.Context, processID string, when time.Time) error {
	filter := bson.M{"_id": processID}
	update := bson.M{"$set": bson.M{"ping": when}}
	opts := options.Update().SetUpsert(true)

	if _, err := c.pings.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("ping for %s: %w", processID, err)
	}
	return nil
}

// StopPing implements Catalog.StopPing.
func (c *MongoCatalog) StopPing(ctx context.Context, processID string) error {
	if _, err := c.pings.DeleteOne(ctx, bson.M{"_id": processID}); err != nil {
		return fmt.Errorf("stop ping for %s: %w", processID, err)
	}
	return nil
}

var _ Catalog = (*MongoCatalog)(nil)
