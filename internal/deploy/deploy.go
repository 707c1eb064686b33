// Package deploy holds the shared contracts of the deployment tool.
// Concrete implementations live in their own packages so that each
// component can be tested with in-memory fakes.
package deploy

import (
	"context"
	"time"
)

// Clock abstracts time for components that schedule or stamp events.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints identifiers for releases and builds.
type IDGenerator interface {
	NewID() (string, error)
}

// Publisher emits deploy events to an event bus. The returned string
// is the bus-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ArtifactStore persists build and release artifacts. PutObject
// returns a store-specific URI for the written object.
type ArtifactStore interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}
