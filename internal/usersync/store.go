package usersync

import (
	"context"

	"github.com/nexusrtb/catalyst/pkg/redis"
)

// Store is the server-side partner-uid mapping consulted by the auction
// pipeline's identity (demand) stage: one hash per local id, field per
// bidder code, holding that bidder's own idea of the user's id.
type Store struct {
	redis *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{redis: client}
}

func key(localID string) string {
	return "usersync:{" + localID + "}"
}

// Lookup returns the partner uid a bidder has previously synced for
// localID, if any.
func (s *Store) Lookup(ctx context.Context, localID, bidder string) (string, bool, error) {
	v, err := s.redis.HGet(ctx, key(localID), bidder)
	if err != nil {
		return "", false, nil
	}
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// LookupAll returns every bidder->uid mapping known for localID, used to
// batch-resolve identity across every surviving callout in one round trip.
func (s *Store) LookupAll(ctx context.Context, localID string) (map[string]string, error) {
	return s.redis.HGetAll(ctx, key(localID))
}

// Record stores bidder's remote uid for localID, called from the /sync/in/
// {partner} callback endpoint.
func (s *Store) Record(ctx context.Context, localID, bidder, remoteUID string) error {
	return s.redis.HSet(ctx, key(localID), bidder, remoteUID)
}

// Forget removes a single bidder's mapping for localID.
func (s *Store) Forget(ctx context.Context, localID, bidder string) error {
	return s.redis.HDel(ctx, key(localID), bidder)
}
