package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentmesh/runtime/config"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/store/inmem"
	"github.com/agentmesh/runtime/store/mongostore"
	"github.com/agentmesh/runtime/store/redisstore"
	"github.com/agentmesh/runtime/store/sqlitestore"
)

// newScratchpadStore selects the ScratchpadStore backing: an in-memory store
// by default, or a SQLite-backed store when cfg.ScratchpadDB names a
// database path, mirroring newAgentStore's selection for the agent catalog.
func newScratchpadStore(cfg config.Config) (store.ScratchpadStore, error) {
	if cfg.ScratchpadDB == "" {
		return inmem.NewScratchpadStore(), nil
	}
	return sqlitestore.OpenScratchpadStore(cfg.ScratchpadDB)
}

// newSessionStore selects the SessionStore backing: an in-memory store by
// default, or a Redis-backed store when cfg.SessionRedisAddr names a
// reachable address, so provisioned browser sessions (and any other
// thread-scoped key/value state) survive an agentd restart.
func newSessionStore(cfg config.Config) store.SessionStore {
	if cfg.SessionRedisAddr == "" {
		return inmem.NewSessionStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.SessionRedisAddr,
		DB:   cfg.SessionRedisDB,
	})
	return redisstore.New(client)
}

// newThreadTaskStore selects the ThreadStore/TaskStore backing: an
// in-memory store by default, or a MongoDB-backed store when both
// cfg.ThreadStoreMongoURI and cfg.ThreadStoreMongoDB are set.
func newThreadTaskStore(cfg config.Config) (*inmem.ThreadTaskStore, *mongostore.Store, error) {
	if cfg.ThreadStoreMongoURI == "" || cfg.ThreadStoreMongoDB == "" {
		return inmem.NewThreadTaskStore(), nil, nil
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.ThreadStoreMongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(context.Background(), nil); err != nil {
		return nil, nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return nil, mongostore.New(client.Database(cfg.ThreadStoreMongoDB)), nil
}
