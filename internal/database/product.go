package database

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pricetracker/price-tracker/internal/models"
	"github.com/pricetracker/price-tracker/internal/parser"
)

const (
	EventProductsScraped = "PRODUCTS_SCRAPED"
	AggregateSite        = "site"

	DefaultStream = "stream:price_updates"
)

// maxPriceValue is the first value NUMERIC(14, 2) cannot hold.
const maxPriceValue = 1e12

var productColumns = []string{"site", "name", "price", "price_value", "detail_url", "seller", "scraped_at"}

// ProductsScrapedPayload is the outbox payload written with every batch.
type ProductsScrapedPayload struct {
	Site      string    `json:"site"`
	Count     int       `json:"count"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// ProductStore persists scraped records in Postgres. Every batch insert also
// records a PRODUCTS_SCRAPED outbox event in the same transaction.
type ProductStore struct {
	db     *DB
	outbox *OutboxRepository
	stream string
}

func NewProductStore(db *DB, stream string) *ProductStore {
	if stream == "" {
		stream = DefaultStream
	}
	return &ProductStore{
		db:     db,
		outbox: NewOutboxRepository(db),
		stream: stream,
	}
}

// InsertBatch bulk-inserts records. An empty batch writes nothing.
func (s *ProductStore) InsertBatch(ctx context.Context, records []models.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = productRow(r)
	}

	events, err := scrapedEvents(records, s.stream)
	if err != nil {
		return err
	}

	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"products"}, productColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to insert products: %w", err)
		}
		if int(n) != len(records) {
			return fmt.Errorf("failed to insert products: copied %d of %d rows", n, len(records))
		}

		for _, event := range events {
			if err := s.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearAll removes every stored product.
func (s *ProductStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.pool.Exec(ctx, `TRUNCATE TABLE products RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}
	return nil
}

// ListByPrice returns every record ordered by ascending numeric price.
// Prices that could not be parsed sort last.
func (s *ProductStore) ListByPrice(ctx context.Context) ([]models.ProductRecord, error) {
	query := `
		SELECT site, name, price, detail_url, seller, scraped_at
		FROM products
		ORDER BY price_value ASC NULLS LAST, price ASC, id ASC`

	rows, err := s.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.ProductRecord{}
	for rows.Next() {
		var p models.ProductRecord
		if err := rows.Scan(&p.Site, &p.Name, &p.Price, &p.DetailURL, &p.Seller, &p.ScrapedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

// PendingEvents is the outbox backlog reported by /health.
func (s *ProductStore) PendingEvents(ctx context.Context) (int64, error) {
	return s.outbox.CountPending(ctx)
}

func (s *ProductStore) DeadLetterEvents(ctx context.Context) (int64, error) {
	return s.outbox.CountDeadLetter(ctx)
}

func (s *ProductStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func productRow(r models.ProductRecord) []any {
	var priceValue *float64
	if v, ok := parser.ParsePrice(r.Price); ok && math.Abs(v) < maxPriceValue {
		priceValue = &v
	}
	scrapedAt := r.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now()
	}
	return []any{r.Site, r.Name, r.Price, priceValue, r.DetailURL, r.Seller, scrapedAt}
}

// scrapedEvents builds one event per site present in the batch, in first-seen order.
func scrapedEvents(records []models.ProductRecord, stream string) ([]*OutboxEvent, error) {
	counts := map[string]int{}
	var order []string
	for _, r := range records {
		if _, seen := counts[r.Site]; !seen {
			order = append(order, r.Site)
		}
		counts[r.Site]++
	}

	now := time.Now().UTC()
	events := make([]*OutboxEvent, 0, len(order))
	for _, site := range order {
		payload, err := json.Marshal(ProductsScrapedPayload{Site: site, Count: counts[site], ScrapedAt: now})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		events = append(events, &OutboxEvent{
			AggregateType: AggregateSite,
			AggregateID:   site,
			EventType:     EventProductsScraped,
			Payload:       payload,
			TargetStream:  stream,
		})
	}
	return events, nil
}
