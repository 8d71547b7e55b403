package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultTimeout = 10 * time.Second
	defaultAppName = "auth-api"
)

// ErrNoTransactions is returned by Connect when the deployment is a
// standalone server, which cannot run RunAtomic.
var ErrNoTransactions = errors.New("mongo deployment does not support transactions; use a replica set")

// Config captures the settings required to establish a MongoDB connection.
type Config struct {
	URI      string
	Database string
	AppName  string
	Timeout  time.Duration
}

// Connect establishes a MongoDB client, verifies connectivity with a ping and
// checks that the deployment supports multi-document transactions.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	appName := cfg.AppName
	if appName == "" {
		appName = defaultAppName
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	if err := checkTransactions(connectCtx, client); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, err
	}

	return client, client.Database(cfg.Database), nil
}

type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

func checkTransactions(ctx context.Context, client *mongo.Client) error {
	var reply helloReply
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply); err != nil {
		return fmt.Errorf("mongo hello: %w", err)
	}
	if !transactionCapable(reply) {
		return ErrNoTransactions
	}
	return nil
}

// transactionCapable reports true for replica set members and mongos routers.
func transactionCapable(r helloReply) bool {
	return r.SetName != "" || r.Msg == "isdbgrid"
}
