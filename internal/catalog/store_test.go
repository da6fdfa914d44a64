package catalog

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flexibleSQLMatcher creates a regex insensitive to whitespace for robust
// SQL mock matching.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyArg accepts any value (used for encoded JSON and timestamps we can't
// predict exactly).
var anyArg = ArgumentMatcherFunc(func(v interface{}) bool {
	return true
})

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	mockPool.ExpectExec("SELECT 1 FROM products").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	store, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return store, mockPool
}

func permissionError() *pgconn.PgError {
	return &pgconn.PgError{Code: insufficientPrivilege, Message: "permission denied for table products"}
}

func TestNewStore(t *testing.T) {
	t.Run("ping failure propagates", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestFindProductByURLKey(t *testing.T) {
	ctx := context.Background()

	t.Run("existing record returned", func(t *testing.T) {
		store, mockPool := newTestStore(t)

		id := uuid.New()
		rows := pgxmock.NewRows([]string{"id", "name", "source_url", "base_price", "final_price", "created_at"}).
			AddRow(id, "검정 티셔츠", "https://shop.example.com/detail?goods_id=123", int64(2000), int64(2300), time.Now())
		mockPool.ExpectQuery("SELECT id, name, source_url").
			WithArgs("goods_id=123").
			WillReturnRows(rows)

		got, err := store.FindProductByURLKey(ctx, "goods_id=123")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, got.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("no record returns nil without error", func(t *testing.T) {
		store, mockPool := newTestStore(t)

		mockPool.ExpectQuery("SELECT id, name, source_url").
			WithArgs("goods_id=999").
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "source_url", "base_price", "final_price", "created_at"}))

		got, err := store.FindProductByURLKey(ctx, "goods_id=999")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("permission denial is categorical", func(t *testing.T) {
		store, mockPool := newTestStore(t)

		mockPool.ExpectQuery("SELECT id, name, source_url").
			WithArgs("goods_id=1").
			WillReturnError(permissionError())

		_, err := store.FindProductByURLKey(ctx, "goods_id=1")
		require.ErrorIs(t, err, ErrPermissionDenied)
	})
}

func TestCreateProduct(t *testing.T) {
	ctx := context.Background()

	product := &Product{
		ID:         uuid.New(),
		Name:       "검정 티셔츠",
		SourceURL:  "https://shop.example.com/detail?goods_id=123",
		BasePrice:  2000,
		FinalPrice: 2300,
		Specs:      map[string]string{"소재": "면"},
		CreatedAt:  time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	option := ProductOption{ID: uuid.New(), ProductID: product.ID, Name: "색상", Values: []string{"검정"}}
	variant := ProductVariant{ID: uuid.New(), ProductID: product.ID, Color: "검정", BasePrice: 2000, FinalPrice: 2300}

	t.Run("success commits product, options, and variants", func(t *testing.T) {
		store, mockPool := newTestStore(t)

		mockPool.ExpectBegin()
		mockPool.ExpectExec("INSERT INTO products").
			WithArgs(product.ID, product.Name, product.SourceURL, product.BasePrice, product.FinalPrice,
				product.DescriptionText, product.Keywords, anyArg, product.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		batchExp := mockPool.ExpectBatch()
		batchExp.ExpectExec(flexibleSQLMatcher(`INSERT INTO product_options`)).
			WithArgs(option.ID, product.ID, option.Name, option.Values, option.Position).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batchExp.ExpectExec(flexibleSQLMatcher(`INSERT INTO product_variants`)).
			WithArgs(variant.ID, product.ID, variant.Color, variant.Size, variant.BasePrice, variant.FinalPrice, variant.ImageURL).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		// Expect Commit AND the subsequent deferred Rollback (which returns ErrTxClosed).
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		err := store.CreateProduct(ctx, product, []ProductOption{option}, []ProductVariant{variant})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("zero created_at falls back to insertion time", func(t *testing.T) {
		store, mockPool := newTestStore(t)

		blankCopy := *product
		blankCopy.CreatedAt = time.Time{}
		blank := &blankCopy

		recentTime := ArgumentMatcherFunc(func(v interface{}) bool {
			ts, ok := v.(time.Time)
			return ok && time.Since(ts) < time.Minute
		})

		mockPool.ExpectBegin()
		mockPool.ExpectExec("INSERT INTO products").
			WithArgs(blank.ID, blank.Name, blank.SourceURL, blank.BasePrice, blank.FinalPrice,
				blank.DescriptionText, blank.Keywords, anyArg, recentTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		err := store.CreateProduct(ctx, blank, nil, nil)
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("permission denial on insert is categorical", func(t *testing.T) {
		store, mockPool := newTestStore(t)

		mockPool.ExpectBegin()
		mockPool.ExpectExec("INSERT INTO products").
			WithArgs(product.ID, product.Name, product.SourceURL, product.BasePrice, product.FinalPrice,
				product.DescriptionText, product.Keywords, anyArg, product.CreatedAt).
			WillReturnError(permissionError())
		mockPool.ExpectRollback()

		err := store.CreateProduct(ctx, product, nil, nil)
		require.ErrorIs(t, err, ErrPermissionDenied)
	})
}

func TestAddImages(t *testing.T) {
	ctx := context.Background()

	t.Run("bulk insert via copy", func(t *testing.T) {
		store, mockPool := newTestStore(t)

		images := []ProductImage{
			{ID: uuid.New(), ProductID: uuid.New(), URL: "https://img.example.com/a.jpg", Kind: ImageKindGallery},
			{ID: uuid.New(), ProductID: uuid.New(), URL: "https://img.example.com/b.jpg", Kind: ImageKindDescription},
		}

		mockPool.ExpectCopyFrom(
			pgx.Identifier{"product_images"},
			[]string{"id", "product_id", "url", "kind", "position"},
		).WillReturnResult(2)

		require.NoError(t, store.AddImages(ctx, images))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty slice is a no-op", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.AddImages(ctx, nil))
	})
}

func TestSetEmbedding(t *testing.T) {
	store, mockPool := newTestStore(t)

	id := uuid.New()
	mockPool.ExpectExec("UPDATE products SET embedding").
		WithArgs(anyArg, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetEmbedding(context.Background(), id, []float32{0.1, 0.2}))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
