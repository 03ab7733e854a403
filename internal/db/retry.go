package db

import (
	"errors"
	"time"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a single write attempt, typically generating a fresh key each call.
type Operation func() error

// DuplicateKeyCheck decides whether a failed attempt collided on a unique key.
type DuplicateKeyCheck func(err error) bool

const DefaultMaxRetries = 3

// Try runs op, retrying up to DefaultMaxRetries times on duplicate key errors
// from any supported store.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsDuplicateKeyError)
}

// WithRetries runs op once plus up to maxRetries more times while it keeps
// failing with a duplicate key. Any other error is returned immediately.
func WithRetries(op Operation, maxRetries int, isDuplicateKey DuplicateKeyCheck) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !isDuplicateKey(err) {
			break
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// IsDuplicateKeyError recognizes ErrDuplicateKey as well as raw PostgreSQL
// and MongoDB unique violations.
func IsDuplicateKeyError(err error) bool {
	if errors.Is(err, ErrDuplicateKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return IsMongoDuplicateKeyError(err)
}

// IsMongoDuplicateKeyError checks for MongoDB error code 11000.
func IsMongoDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
