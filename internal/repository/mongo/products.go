package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shestoi/stockflow/internal/repository"
)

const (
	productsCollection = "products"
	countersCollection = "counters"
	productsCounterID  = "products"
)

// productDocument представляет документ товара в коллекции MongoDB
// Цена хранится строкой, чтобы не терять точность decimal
type productDocument struct {
	ID            int64     `bson:"_id"`
	Name          string    `bson:"name"`
	Price         string    `bson:"price"`
	StockQuantity int       `bson:"stock_quantity"`
	Version       int64     `bson:"version"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type counterDocument struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// ProductRepository реализует repository.ProductRepository используя MongoDB
// Запись с проверкой версии через фильтр {_id, version}
type ProductRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

// NewProductRepository создаёт MongoDB репозиторий товаров
func NewProductRepository(client *mongo.Client, dbName string) *ProductRepository {
	db := client.Database(dbName)
	return &ProductRepository{
		col:      db.Collection(productsCollection),
		counters: db.Collection(countersCollection),
	}
}

func (d productDocument) toDomain() (repository.Product, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return repository.Product{}, fmt.Errorf("parse price of product %d: %w", d.ID, err)
	}
	return repository.Product{
		ID:            d.ID,
		Name:          d.Name,
		Price:         price,
		StockQuantity: d.StockQuantity,
		Version:       d.Version,
		UpdatedAt:     d.UpdatedAt.UTC(),
	}, nil
}

// nextID выдаёт следующий числовой ID через атомарный $inc в counters
func (r *ProductRepository) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c counterDocument
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": productsCounterID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("next product id: %w", err)
	}
	return c.Seq, nil
}

func (r *ProductRepository) find(ctx context.Context, id int64) (productDocument, error) {
	var doc productDocument
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return productDocument{}, repository.ErrNotFound
		}
		return productDocument{}, fmt.Errorf("find product %d: %w", id, err)
	}
	return doc, nil
}

// GetByID получает товар по ID
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (repository.Product, error) {
	doc, err := r.find(ctx, id)
	if err != nil {
		return repository.Product{}, err
	}
	return doc.toDomain()
}

// GetAll возвращает все товары по возрастанию ID
func (r *ProductRepository) GetAll(ctx context.Context) ([]repository.Product, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cur.Close(ctx)

	var docs []productDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make([]repository.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

// Add сохраняет новый товар с версией 1
func (r *ProductRepository) Add(ctx context.Context, product repository.Product) (repository.Product, error) {
	id, err := r.nextID(ctx)
	if err != nil {
		return repository.Product{}, err
	}

	doc := productDocument{
		ID:            id,
		Name:          product.Name,
		Price:         product.Price.String(),
		StockQuantity: product.StockQuantity,
		Version:       1,
		UpdatedAt:     time.Now().UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return repository.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return doc.toDomain()
}

// Update меняет имя и цену при совпадении версии
func (r *ProductRepository) Update(ctx context.Context, product repository.Product) (repository.Product, error) {
	filter := bson.M{"_id": product.ID, "version": product.Version}
	update := bson.M{
		"$set": bson.M{
			"name":       product.Name,
			"price":      product.Price.String(),
			"updated_at": time.Now().UTC(),
		},
		"$inc": bson.M{"version": int64(1)},
	}

	var doc productDocument
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return repository.Product{}, r.missOrConflict(ctx, product.ID)
		}
		return repository.Product{}, fmt.Errorf("update product %d: %w", product.ID, err)
	}
	return doc.toDomain()
}

// missOrConflict различает отсутствие товара и проигранную проверку версии
func (r *ProductRepository) missOrConflict(ctx context.Context, id int64) error {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count product %d: %w", id, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrVersionConflict
}

// Delete удаляет товар
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CheckStock проверяет остаток без изменения
func (r *ProductRepository) CheckStock(ctx context.Context, id int64, quantity int) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"_id":            id,
		"stock_quantity": bson.M{"$gte": quantity},
	})
	if err != nil {
		return false, fmt.Errorf("check stock of product %d: %w", id, err)
	}
	return n > 0, nil
}

// AdjustStock одна попытка stock -= delta: чтение версии, проверка, запись с фильтром по версии
func (r *ProductRepository) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	doc, err := r.find(ctx, id)
	if err != nil {
		return 0, err
	}

	next := doc.StockQuantity - delta
	if next < 0 {
		return 0, &repository.StockShortageError{Available: doc.StockQuantity}
	}

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "version": doc.Version},
		bson.M{
			"$set": bson.M{"stock_quantity": next, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"version": int64(1)},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("adjust stock of product %d: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return 0, repository.ErrVersionConflict
	}
	return next, nil
}
