package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrPermissionDenied marks a categorical write block from the database.
// Once raised, the whole session is pointless: no later write will succeed
// either, so callers treat it as fatal.
var ErrPermissionDenied = errors.New("catalog: database permission denied")

// insufficientPrivilege is the SQLSTATE for a revoked table grant.
const insufficientPrivilege = "42501"

// DBPool abstracts pgxpool.Pool for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides the PostgreSQL persistence layer for the catalog.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection. Schema presence is the
// operator's responsibility; a quick informational probe is logged only.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		pool: pool,
		log:  logger.Named("catalog_store"),
	}

	if _, err := pool.Exec(ctx, "SELECT 1 FROM products LIMIT 1"); err != nil {
		s.log.Warn("Products table probe failed; schema may be missing.", zap.Error(err))
	}
	return s, nil
}

// FindProductByURLKey looks up a product whose stored source URL contains
// the canonical key. Returns (nil, nil) when no record matches.
func (s *Store) FindProductByURLKey(ctx context.Context, key string) (*Product, error) {
	query := `
        SELECT id, name, source_url, base_price, final_price, created_at
        FROM products
        WHERE source_url LIKE '%' || $1 || '%'
        LIMIT 1;
    `
	rows, err := s.pool.Query(ctx, query, key)
	if err != nil {
		return nil, s.classify(fmt.Errorf("failed to query product by url key: %w", err))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, s.classify(fmt.Errorf("error during row iteration: %w", err))
		}
		return nil, nil
	}

	var p Product
	if err := rows.Scan(&p.ID, &p.Name, &p.SourceURL, &p.BasePrice, &p.FinalPrice, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan product row: %w", err)
	}
	return &p, nil
}

// CreateProduct inserts the product with its option sets and variants in
// one transaction.
func (s *Store) CreateProduct(ctx context.Context, p *Product, options []ProductOption, variants []ProductVariant) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	specsJSON, err := json.Marshal(p.Specs)
	if err != nil {
		return fmt.Errorf("failed to encode specs: %w", err)
	}

	sqlProduct := `
        INSERT INTO products (id, name, source_url, base_price, final_price, description_text, keywords, specs, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx, sqlProduct,
		p.ID, p.Name, p.SourceURL, p.BasePrice, p.FinalPrice,
		p.DescriptionText, p.Keywords, specsJSON, createdAt,
	); err != nil {
		return s.classify(fmt.Errorf("failed to insert product: %w", err))
	}

	batch := &pgx.Batch{}

	sqlOption := `
        INSERT INTO product_options (id, product_id, name, "values", position)
        VALUES ($1, $2, $3, $4, $5);
    `
	for _, o := range options {
		batch.Queue(sqlOption, o.ID, p.ID, o.Name, o.Values, o.Position)
	}

	sqlVariant := `
        INSERT INTO product_variants (id, product_id, color, size, base_price, final_price, image_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
	for _, v := range variants {
		batch.Queue(sqlVariant, v.ID, p.ID, v.Color, v.Size, v.BasePrice, v.FinalPrice, v.ImageURL)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		if br == nil {
			return fmt.Errorf("failed to send batch: batch results is nil")
		}
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return s.classify(fmt.Errorf("failed to execute batch insert (index %d): %w", i, err))
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return s.classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// AddImages bulk-inserts image records for an already-created product.
// This runs outside the product transaction; its failure never rolls the
// product back.
func (s *Store) AddImages(ctx context.Context, images []ProductImage) error {
	if len(images) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(images))
	for i, img := range images {
		rows[i] = []interface{}{img.ID, img.ProductID, img.URL, img.Kind, img.Position}
	}

	copyCount, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"product_images"},
		[]string{"id", "product_id", "url", "kind", "position"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return s.classify(fmt.Errorf("failed to copy product images: %w", err))
	}
	if int(copyCount) != len(images) {
		return fmt.Errorf("mismatch in copied image count: expected %d, got %d", len(images), copyCount)
	}
	return nil
}

// SetEmbedding stores the vector embedding for a product.
func (s *Store) SetEmbedding(ctx context.Context, productID uuid.UUID, embedding []float32) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE products SET embedding = $1 WHERE id = $2;`,
		embedding, productID,
	); err != nil {
		return s.classify(fmt.Errorf("failed to store embedding: %w", err))
	}
	return nil
}

// classify maps an insufficient-privilege SQLSTATE onto the categorical
// ErrPermissionDenied while keeping the original error in the chain.
func (s *Store) classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == insufficientPrivilege {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}
