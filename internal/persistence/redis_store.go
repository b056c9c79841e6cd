package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"path"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/actiflow/pkg/api"
)

// RedisInstanceStore is an InstanceStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>inst:<id> => gob-encoded redisInstancePayload
//
// Optimistic concurrency is implemented with WATCH/MULTI on the instance
// key: a concurrent writer aborts the transaction and the update is
// reported as a version conflict.
type RedisInstanceStore struct {
	client *redis.Client
	prefix string
}

var _ InstanceStore = (*RedisInstanceStore)(nil)

type redisInstancePayload struct {
	ID           string
	DefinitionID string
	Name         string
	CurrentNode  string
	HasNode      bool
	Variables    map[string]string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewRedisInstanceStore creates a RedisInstanceStore.
// prefix is optional but recommended (e.g. "actiflow:").
func NewRedisInstanceStore(client *redis.Client, prefix string) *RedisInstanceStore {
	if prefix == "" {
		prefix = "actiflow:"
	}
	return &RedisInstanceStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisInstanceStore) keyInstance(id string) string {
	return s.prefix + "inst:" + id
}

func encodeRedisPayload(inst *api.Instance) ([]byte, error) {
	payload := redisInstancePayload{
		ID:           inst.ID,
		DefinitionID: inst.DefinitionID,
		Name:         inst.Name,
		Variables:    inst.Variables,
		Version:      inst.Version,
		CreatedAt:    inst.CreatedAt,
		UpdatedAt:    inst.UpdatedAt,
	}
	if inst.CurrentNodeID != nil {
		payload.CurrentNode = *inst.CurrentNodeID
		payload.HasNode = true
	}
	if payload.Variables == nil {
		payload.Variables = map[string]string{}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisPayload(data []byte) (*api.Instance, error) {
	if len(data) == 0 {
		return nil, ErrInstanceNotFound
	}
	var payload redisInstancePayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, err
	}

	inst := &api.Instance{
		ID:           payload.ID,
		DefinitionID: payload.DefinitionID,
		Name:         payload.Name,
		Variables:    payload.Variables,
		Version:      payload.Version,
		CreatedAt:    payload.CreatedAt,
		UpdatedAt:    payload.UpdatedAt,
	}
	if payload.HasNode {
		n := payload.CurrentNode
		inst.CurrentNodeID = &n
	}
	if inst.Variables == nil {
		inst.Variables = map[string]string{}
	}
	return inst, nil
}

func (s *RedisInstanceStore) SaveInstance(ctx context.Context, inst *api.Instance) error {
	data, err := encodeRedisPayload(inst)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyInstance(inst.ID), data, 0).Err()
}

func (s *RedisInstanceStore) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	data, err := s.client.Get(ctx, s.keyInstance(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return decodeRedisPayload(data)
}

func (s *RedisInstanceStore) UpdateCurrentNode(ctx context.Context, id string, nodeID *string, version int64) (bool, error) {
	return s.update(ctx, id, version, func(inst *api.Instance) {
		if nodeID == nil {
			inst.CurrentNodeID = nil
			return
		}
		n := *nodeID
		inst.CurrentNodeID = &n
	})
}

func (s *RedisInstanceStore) UpdateVariables(ctx context.Context, id string, vars map[string]string, version int64) (bool, error) {
	return s.update(ctx, id, version, func(inst *api.Instance) {
		inst.Variables = make(map[string]string, len(vars))
		for k, v := range vars {
			inst.Variables[k] = v
		}
	})
}

// update runs an optimistic read-modify-write on one instance key.
func (s *RedisInstanceStore) update(ctx context.Context, id string, version int64, mutate func(*api.Instance)) (bool, error) {
	key := s.keyInstance(id)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrInstanceNotFound
			}
			return err
		}

		inst, err := decodeRedisPayload(data)
		if err != nil {
			return err
		}
		if inst.Version != version {
			return ErrVersionConflict
		}

		mutate(inst)
		inst.Version++
		inst.UpdatedAt = time.Now().UTC()

		next, err := encodeRedisPayload(inst)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// The key changed between read and write; same outcome as a
			// stale version token.
			return false, ErrVersionConflict
		}
		return false, err
	}
	return true, nil
}

func (s *RedisInstanceStore) FindByNamePattern(ctx context.Context, pattern string, since time.Time) ([]*api.Instance, error) {
	var instances []*api.Instance

	iter := s.client.Scan(ctx, 0, s.prefix+"inst:*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		inst, err := decodeRedisPayload(data)
		if err != nil {
			return nil, err
		}
		if inst.CreatedAt.Before(since) {
			continue
		}
		ok, err := path.Match(pattern, inst.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			instances = append(instances, inst)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return instances, nil
}
