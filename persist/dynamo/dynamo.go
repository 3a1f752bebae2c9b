// Package dynamo persists a lattice store in a DynamoDB table.
//
// Each collection snapshot is one item in a single partition per store, and
// Save replaces the full set in one TransactWriteItems call so readers never
// observe a half-written save. Writes are retried with Fibonacci backoff on
// throttling and transaction conflicts.
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sethvargo/go-retry"

	"github.com/jacentio/lattice/store"
)

// DynamoDB transactions cap out at 100 items; a save larger than that cannot
// be written atomically.
const maxTransactItems = 100

// API is the subset of the DynamoDB client the backend uses.
// *dynamodb.Client satisfies it.
type API interface {
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Config holds configuration for the DynamoDB backend.
type Config struct {
	// Table is the snapshot table name.
	// Default: "lattice_snapshots"
	Table string

	// StoreName partitions saves so several stores can share one table.
	// Default: "default"
	StoreName string

	// MaxRetries bounds the backoff on throttled writes.
	// Default: 5
	MaxRetries uint64

	// Logger receives save/load events. Defaults to slog.Default().
	Logger *slog.Logger
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "lattice_snapshots"
	}
	if c.StoreName == "" {
		c.StoreName = "default"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client is a DynamoDB-backed snapshot store.
type Client struct {
	client API
	config Config
}

// New creates a new Client instance.
func New(client API, config Config) *Client {
	config.validate()
	return &Client{
		client: client,
		config: config,
	}
}

// collectionItem is the wire form of one saved collection.
type collectionItem struct {
	PK      string `dynamodbav:"pk"`
	SK      string `dynamodbav:"sk"`
	Name    string `dynamodbav:"name"`
	Ordinal int    `dynamodbav:"ordinal"`
	Payload []byte `dynamodbav:"payload"`
	SavedAt string `dynamodbav:"saved_at"`
}

func (c *Client) pk() string { return "snapshot#" + c.config.StoreName }

// Save captures the store and writes it out transactionally, replacing any
// previous save. It fails with store.ErrUnresolvedTransaction if a
// transaction is open on any collection.
func (c *Client) Save(ctx context.Context, s *store.Store) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}

	existing, err := c.savedNames(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	items := []types.TransactWriteItem{}
	keep := make(map[string]bool, len(snap.Collections))

	for i, cs := range snap.Collections {
		keep[cs.Name] = true
		payload, err := json.Marshal(cs)
		if err != nil {
			return fmt.Errorf("dynamo: encode collection %q: %w", cs.Name, err)
		}
		item, err := attributevalue.MarshalMap(collectionItem{
			PK:      c.pk(),
			SK:      "collection#" + cs.Name,
			Name:    cs.Name,
			Ordinal: i,
			Payload: payload,
			SavedAt: now,
		})
		if err != nil {
			return fmt.Errorf("dynamo: marshal collection %q: %w", cs.Name, err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.config.Table),
				Item:      item,
			},
		})
	}

	// Drop collections from earlier saves that no longer exist.
	for _, name := range existing {
		if keep[name] {
			continue
		}
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(c.config.Table),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: c.pk()},
					"sk": &types.AttributeValueMemberS{Value: "collection#" + name},
				},
			},
		})
	}

	if len(items) == 0 {
		return nil
	}
	if len(items) > maxTransactItems {
		return fmt.Errorf("dynamo: save needs %d writes, above the %d-item transaction limit",
			len(items), maxTransactItems)
	}

	b := retry.NewFibonacci(time.Second)
	err = retry.Do(ctx, retry.WithMaxRetries(c.config.MaxRetries, b), func(ctx context.Context) error {
		_, err := c.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		if shouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("dynamo: save: %w", err)
	}

	c.config.Logger.Debug("store saved",
		"table", c.config.Table,
		"store", c.config.StoreName,
		"collections", len(snap.Collections),
	)
	return nil
}

// Load reads the saved snapshot and restores a store from it with the given
// configuration. A table with no saved state restores an empty store.
func (c *Client) Load(ctx context.Context, cfg store.Config) (*store.Store, error) {
	var saved []collectionItem

	paginator := dynamodb.NewQueryPaginator(c.client, c.queryInput())
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: load: %w", err)
		}
		for _, raw := range page.Items {
			var item collectionItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("%w: unmarshal item: %v", store.ErrInvalidSnapshot, err)
			}
			saved = append(saved, item)
		}
	}

	// Items come back in sk order; restore the store's creation order.
	sort.Slice(saved, func(i, j int) bool { return saved[i].Ordinal < saved[j].Ordinal })

	snap := &store.Snapshot{}
	for _, item := range saved {
		var cs store.CollectionSnapshot
		if err := json.Unmarshal(item.Payload, &cs); err != nil {
			return nil, fmt.Errorf("%w: decode collection %q: %v", store.ErrInvalidSnapshot, item.Name, err)
		}
		snap.Collections = append(snap.Collections, cs)
	}

	restored, err := store.Restore(cfg, snap)
	if err != nil {
		return nil, err
	}
	c.config.Logger.Debug("store loaded",
		"table", c.config.Table,
		"store", c.config.StoreName,
		"collections", len(snap.Collections),
	)
	return restored, nil
}

// savedNames lists the collection names present in the current save.
func (c *Client) savedNames(ctx context.Context) ([]string, error) {
	var names []string

	paginator := dynamodb.NewQueryPaginator(c.client, c.queryInput())
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: list saved collections: %w", err)
		}
		for _, raw := range page.Items {
			if v, ok := raw["name"].(*types.AttributeValueMemberS); ok {
				names = append(names, v.Value)
			}
		}
	}
	return names, nil
}

func (c *Client) queryInput() *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(c.config.Table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: c.pk()},
		},
	}
}

// shouldRetry reports whether a DynamoDB write failure is transient.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var throttled *types.ProvisionedThroughputExceededException
	if errors.As(err, &throttled) {
		return true
	}
	var limit *types.RequestLimitExceeded
	if errors.As(err, &limit) {
		return true
	}

	// Concurrent saves conflict at the transaction level; the later one wins
	// after a retry.
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if reason.Code != nil && *reason.Code == "TransactionConflict" {
				return true
			}
		}
	}
	return false
}
