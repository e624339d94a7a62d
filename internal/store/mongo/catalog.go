// Package mongo implements the canonical product catalog on MongoDB.
//
// Uniqueness of the product key is enforced by a unique compound index
// created by EnsureIndexes; a colliding insert surfaces as
// *core.DuplicateKeyError for that product only.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JonMunkholm/intake/internal/config"
	"github.com/JonMunkholm/intake/internal/core"
)

const (
	dependency        = "mongo"
	duplicateKeyCode  = 11000
	productKeyIndex   = "product_key_unique"
	defaultOpTimeout  = 10 * time.Second
	disconnectTimeout = 5 * time.Second
)

var _ core.CanonicalStore = (*Catalog)(nil)

type productDoc struct {
	ID                 string    `bson:"_id"`
	ProductName        string    `bson:"product_name"`
	ManufacturerName   string    `bson:"manufacturer_name"`
	Brand              string    `bson:"brand"`
	ProductCategory    *string   `bson:"product_category"`
	ProductSubcategory *string   `bson:"product_subcategory"`
	VariantNormalized  string    `bson:"variant_normalized"`
	WeightKg           *int64    `bson:"weight_kg"`
	ImageURL           string    `bson:"image_url,omitempty"`
	SourceStagingID    string    `bson:"source_staging_id,omitempty"`
	CreatedAt          time.Time `bson:"created_at"`
}

func toDoc(p core.CanonicalProduct) productDoc {
	d := productDoc{
		ID:                 p.ID.String(),
		ProductName:        p.ProductName,
		ManufacturerName:   p.ManufacturerName,
		Brand:              p.Brand,
		ProductCategory:    p.ProductCategory,
		ProductSubcategory: p.ProductSubcategory,
		VariantNormalized:  p.VariantNormalized,
		WeightKg:           p.WeightKg,
		ImageURL:           p.ImageURL,
		CreatedAt:          p.CreatedAt.UTC(),
	}
	if p.SourceStagingID != uuid.Nil {
		d.SourceStagingID = p.SourceStagingID.String()
	}
	return d
}

func (d productDoc) product() (core.CanonicalProduct, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return core.CanonicalProduct{}, fmt.Errorf("product %q: bad id: %w", d.ID, err)
	}
	p := core.CanonicalProduct{
		ID:                 id,
		ProductName:        d.ProductName,
		ManufacturerName:   d.ManufacturerName,
		Brand:              d.Brand,
		ProductCategory:    d.ProductCategory,
		ProductSubcategory: d.ProductSubcategory,
		VariantNormalized:  d.VariantNormalized,
		WeightKg:           d.WeightKg,
		ImageURL:           d.ImageURL,
		CreatedAt:          d.CreatedAt,
	}
	if d.SourceStagingID != "" {
		if src, err := uuid.Parse(d.SourceStagingID); err == nil {
			p.SourceStagingID = src
		}
	}
	return p, nil
}

func keyFilter(key core.ProductKey) bson.D {
	return bson.D{
		{Key: "product_name", Value: key.ProductName},
		{Key: "manufacturer_name", Value: key.ManufacturerName},
		{Key: "variant_normalized", Value: key.VariantNormalized},
	}
}

// Catalog is a CanonicalStore backed by one collection.
type Catalog struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

// Connect opens a client for cfg and pings the server.
func Connect(ctx context.Context, cfg config.CanonicalConfig) (*Catalog, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout(cfg.Timeout))
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, core.Upstream(dependency, fmt.Errorf("ping: %w", err))
	}

	return NewCatalog(client, client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection), cfg.Timeout), nil
}

// NewCatalog wraps an existing collection. timeout bounds each call.
func NewCatalog(client *mongo.Client, coll *mongo.Collection, timeout time.Duration) *Catalog {
	return &Catalog{client: client, coll: coll, timeout: opTimeout(timeout)}
}

// Close disconnects the client.
func (c *Catalog) Close() error {
	if c.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// Ping checks the server for health endpoints.
func (c *Catalog) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Ping(ctx, nil); err != nil {
		return translate(err)
	}
	return nil
}

// EnsureIndexes creates the unique product key index.
func (c *Catalog) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "product_name", Value: 1},
			{Key: "manufacturer_name", Value: 1},
			{Key: "variant_normalized", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName(productKeyIndex),
	})
	if err != nil {
		return core.Upstream(dependency, fmt.Errorf("create index: %w", err))
	}
	return nil
}

func (c *Catalog) FindByKey(ctx context.Context, key core.ProductKey) (*core.CanonicalProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var doc productDoc
	err := c.coll.FindOne(ctx, keyFilter(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	p, err := doc.product()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertMany issues one unordered insert so a duplicate does not stop the
// remaining documents.
func (c *Catalog) InsertMany(ctx context.Context, products []core.CanonicalProduct) (core.InsertManyResult, error) {
	if len(products) == 0 {
		return core.InsertManyResult{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	docs := make([]any, len(products))
	for i, p := range products {
		docs[i] = toDoc(p)
	}

	_, err := c.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return splitInsertResult(products, err)
}

// splitInsertResult attributes write errors to products by index. Errors
// that are not per-document fail the whole call.
func splitInsertResult(products []core.CanonicalProduct, err error) (core.InsertManyResult, error) {
	if err == nil {
		return core.InsertManyResult{Inserted: products}, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return core.InsertManyResult{}, translate(err)
	}

	failed := make(map[int]error, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		if we.Index < 0 || we.Index >= len(products) {
			continue
		}
		if we.Code == duplicateKeyCode {
			failed[we.Index] = &core.DuplicateKeyError{Key: products[we.Index].Key()}
			continue
		}
		failed[we.Index] = fmt.Errorf("%s: write error %d: %s", dependency, we.Code, we.Message)
	}

	var res core.InsertManyResult
	for i, p := range products {
		if ferr, ok := failed[i]; ok {
			res.Failed = append(res.Failed, core.InsertFailure{Product: p, Err: ferr})
			continue
		}
		res.Inserted = append(res.Inserted, p)
	}
	return res, nil
}

// translate maps driver errors to core kinds.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", dependency, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		// Network failures, timeouts and server selection all mean the
		// catalog could not be reached.
		return &core.UpstreamError{Dependency: dependency, Err: err}
	}
}

func opTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultOpTimeout
	}
	return d
}
