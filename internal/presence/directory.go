package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is the presence record shared through Redis so other instances
// and REST callers can see who is online.
type Status struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Instance string     `json:"instance,omitempty"`
}

// Directory mirrors the local registry into Redis under <prefix>:presence:<user>.
type Directory struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	instance string
}

func NewDirectory(r *redis.Client, prefix, instance string, ttl time.Duration) *Directory {
	return &Directory{client: r, prefix: prefix, ttl: ttl, instance: instance}
}

func (d *Directory) key(userID string) string { return fmt.Sprintf("%s:presence:%s", d.prefix, userID) }

// MarkOnline expires after ttl so a crashed instance does not leave users online forever.
func (d *Directory) MarkOnline(ctx context.Context, userID string) error {
	b, err := json.Marshal(Status{Online: true, Instance: d.instance})
	if err != nil {
		return err
	}
	return d.client.Set(ctx, d.key(userID), b, d.ttl).Err()
}

func (d *Directory) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	at = at.UTC()
	b, err := json.Marshal(Status{Online: false, LastSeen: &at})
	if err != nil {
		return err
	}
	return d.client.Set(ctx, d.key(userID), b, 0).Err()
}

// Get returns an offline status when no record exists.
func (d *Directory) Get(ctx context.Context, userID string) (Status, error) {
	b, err := d.client.Get(ctx, d.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	var s Status
	if err := json.Unmarshal(b, &s); err != nil {
		return Status{}, err
	}
	return s, nil
}

// Refresh re-marks users connected to this instance so their records outlive
// the TTL while the connection lasts.
func (d *Directory) Refresh(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	b, err := json.Marshal(Status{Online: true, Instance: d.instance})
	if err != nil {
		return err
	}
	pipe := d.client.Pipeline()
	for _, id := range userIDs {
		pipe.Set(ctx, d.key(id), b, d.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// KeepAlive calls Refresh for every user in reg at half the TTL until ctx ends.
func (d *Directory) KeepAlive(ctx context.Context, reg *Registry, onErr func(error)) {
	ticker := time.NewTicker(d.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Refresh(ctx, reg.Users()); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
