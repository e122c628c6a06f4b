// Package redis stores a sheet as a single JSON document under one key, so
// several worker instances on different hosts can share the signal history.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"xau-signal/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// TableConfig configures the Redis-backed sheet.
type TableConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Key      string // e.g. "sheet:history"
}

// Table reads and overwrites the whole sheet with GET and SET.
// There is no conditional write; callers accept a read-then-write race.
type Table struct {
	client *goredis.Client
	key    string
}

// Client returns the underlying Redis client for health checks.
func (t *Table) Client() *goredis.Client { return t.client }

// New creates a Table and pings the server.
func New(cfg TableConfig) (*Table, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s, sheet key %s", cfg.Addr, cfg.Key)
	return NewWithClient(client, cfg.Key), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, key string) *Table {
	return &Table{client: client, key: key}
}

// ReadAll returns model.ErrSheetNotFound when the key does not exist.
func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	raw, err := t.client.Get(ctx, t.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, model.ErrSheetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", t.key, err)
	}
	return decodeSheet(raw)
}

func (t *Table) Overwrite(ctx context.Context, records [][]string) error {
	raw, err := encodeSheet(records)
	if err != nil {
		return err
	}
	if err := t.client.Set(ctx, t.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", t.key, err)
	}
	return nil
}

// Close releases the client.
func (t *Table) Close() error {
	return t.client.Close()
}

func encodeSheet(records [][]string) ([]byte, error) {
	if records == nil {
		records = [][]string{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("redis encode sheet: %w", err)
	}
	return raw, nil
}

func decodeSheet(raw []byte) ([][]string, error) {
	var records [][]string
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("redis decode sheet: %w", err)
	}
	return records, nil
}
