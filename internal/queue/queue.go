package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StreamRoleEvents carries one entry per committed change to the
	// representation graph (role service pushes, auditors pop).
	StreamRoleEvents = "role_events"

	// GroupAuditor is the consumer group for auditor workers.
	GroupAuditor = "auditor_pool"
)

// Event actions.
const (
	ActionRoleAdded      = "role_added"
	ActionRoleUpdated    = "role_updated"
	ActionRoleDeleted    = "role_deleted"
	ActionGroupCreated   = "group_created"
	ActionGroupReplaced  = "group_replaced"
	ActionLegacyImported = "legacy_imported"
)

// ErrNoMessages is returned by ReadEvent when the block timeout expires.
var ErrNoMessages = errors.New("no messages")

// RoleEvent is the payload pushed to the role_events stream.
type RoleEvent struct {
	CaseID  int64  `json:"case_id"`
	RoleID  int64  `json:"role_id"`
	Action  string `json:"action"`
	GroupID string `json:"group_id,omitempty"`
}

// Status summarizes the role_events stream.
type Status struct {
	Length  int64 `json:"length"`
	Pending int64 `json:"pending"`
}

// Queue manages the Redis stream that feeds the auditors.
type Queue struct {
	client *redis.Client
}

// New creates a Queue from a Redis client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// ConnectRedis creates a Redis client from a URL.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// EnsureStreams creates the consumer group if it doesn't exist.
func (q *Queue) EnsureStreams(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, StreamRoleEvents, GroupAuditor, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create group %s on %s: %w", GroupAuditor, StreamRoleEvents, err)
	}
	return nil
}

// PushEvent adds an event to the role_events stream.
func (q *Queue) PushEvent(ctx context.Context, ev RoleEvent) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamRoleEvents,
		Values: map[string]any{
			"case_id":  ev.CaseID,
			"role_id":  ev.RoleID,
			"action":   ev.Action,
			"group_id": ev.GroupID,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("push event: %w", err)
	}
	return id, nil
}

// ReadEvent reads one event for consumer. A zero block waits forever and a
// negative one does not wait; ErrNoMessages means nothing arrived in time.
func (q *Queue) ReadEvent(ctx context.Context, consumer string, block time.Duration) (*RoleEvent, string, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    GroupAuditor,
		Consumer: consumer,
		Streams:  []string{StreamRoleEvents, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", ErrNoMessages
	}
	if err != nil {
		return nil, "", fmt.Errorf("read event: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ev, err := decodeEvent(msg.Values)
			if err != nil {
				return nil, msg.ID, fmt.Errorf("decode event %s: %w", msg.ID, err)
			}
			return ev, msg.ID, nil
		}
	}
	return nil, "", ErrNoMessages
}

// Ack acknowledges an event.
func (q *Queue) Ack(ctx context.Context, msgID string) error {
	if err := q.client.XAck(ctx, StreamRoleEvents, GroupAuditor, msgID).Err(); err != nil {
		return fmt.Errorf("ack event %s: %w", msgID, err)
	}
	return nil
}

// Status returns the stream length and the number of delivered but
// unacknowledged events.
func (q *Queue) Status(ctx context.Context) (Status, error) {
	length, err := q.client.XLen(ctx, StreamRoleEvents).Result()
	if err != nil {
		return Status{}, fmt.Errorf("stream length: %w", err)
	}
	pending, err := q.client.XPending(ctx, StreamRoleEvents, GroupAuditor).Result()
	if err != nil {
		return Status{}, fmt.Errorf("pending events: %w", err)
	}
	return Status{Length: length, Pending: pending.Count}, nil
}

func decodeEvent(values map[string]any) (*RoleEvent, error) {
	caseID, err := getInt(values, "case_id")
	if err != nil {
		return nil, err
	}
	roleID, err := getInt(values, "role_id")
	if err != nil {
		return nil, err
	}
	return &RoleEvent{
		CaseID:  caseID,
		RoleID:  roleID,
		Action:  getString(values, "action"),
		GroupID: getString(values, "group_id"),
	}, nil
}

func getInt(values map[string]any, key string) (int64, error) {
	s := getString(values, key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return n, nil
}

func getString(values map[string]any, key string) string {
	if v, ok := values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
