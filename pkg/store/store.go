// Package store defines where finished measurements are kept.
package store

import (
	"context"
	"errors"

	"github.com/tomjod/forcemeter/pkg/measurement"
)

var ErrNotFound = errors.New("measurement not found")

// Store persists measurements. Listings are ordered newest first.
type Store interface {
	// Save inserts entry, or replaces the stored measurement with the same ID. A measurement without
	// an ID is assigned one.
	Save(ctx context.Context, entry *measurement.Measurement) error
	ForProfile(ctx context.Context, profileID int64) ([]*measurement.Measurement, error)
	// Recent returns at most limit measurements for profileID. A profileID of AllProfiles selects
	// every profile.
	Recent(ctx context.Context, profileID int64, limit int) ([]*measurement.Measurement, error)
	Get(ctx context.Context, id string) (*measurement.Measurement, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, profileID int64) (int, error)
	Close() error
}

// AllProfiles matches measurements of any profile in Recent and Count.
const AllProfiles int64 = -1
