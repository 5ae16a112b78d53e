// Package recipe is the PostgreSQL gateway for recipe rows: row locks for the
// indexing pipeline and plain CRUD for the API.
package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/cookbook/internal/db/postgres"
	"github.com/kailas-cloud/cookbook/internal/domain"
)

const recipeColumns = "id, name, description, ingredients, liked, embedding, indexed"

// Repo implements the recipe gateway over a pgx pool.
type Repo struct {
	pool    postgres.Pool
	channel string
}

// New creates a gateway. channel is the NOTIFY channel for index events.
func New(pool postgres.Pool, channel string) *Repo {
	return &Repo{pool: pool, channel: channel}
}

// GetForUpdate locks one row and returns it with the open transaction.
// A missing row yields a nil recipe and a live transaction the caller must end.
func (r *Repo) GetForUpdate(ctx context.Context, id int64) (*domain.Recipe, domain.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, &domain.PersistenceError{Op: "begin", Err: err}
	}

	row := tx.QueryRow(ctx, "SELECT "+recipeColumns+" FROM recipes WHERE id = $1 FOR UPDATE", id)
	rec, err := scanRecipe(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tx, nil
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, &domain.PersistenceError{Op: "get for update", Err: err}
	}
	return &rec, tx, nil
}

// GetBatchForIndex locks up to n unindexed rows, skipping rows locked elsewhere.
// Rows deferred by earlier failed sweeps come after fresh ones.
func (r *Repo) GetBatchForIndex(ctx context.Context, n int) ([]domain.Recipe, domain.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, &domain.PersistenceError{Op: "begin", Err: err}
	}

	rows, err := tx.Query(ctx,
		"SELECT "+recipeColumns+" FROM recipes WHERE NOT indexed ORDER BY index_attempts, id LIMIT $1 FOR UPDATE SKIP LOCKED", n)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, &domain.PersistenceError{Op: "get batch for index", Err: err}
	}

	recipes, err := collectRecipes(rows)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, &domain.PersistenceError{Op: "get batch for index", Err: err}
	}
	return recipes, tx, nil
}

// DeferBatch bumps the attempt counter of ids inside tx. The tx stays open.
func (r *Repo) DeferBatch(ctx context.Context, tx domain.Tx, ids []int64) error {
	ptx, ok := tx.(pgx.Tx)
	if !ok {
		return &domain.PersistenceError{Op: "defer batch", Err: fmt.Errorf("foreign transaction %T", tx)}
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := ptx.Exec(ctx, "UPDATE recipes SET index_attempts = index_attempts + 1 WHERE id = ANY($1)", ids); err != nil {
		return &domain.PersistenceError{Op: "defer batch", Err: err}
	}
	return nil
}

// SetBatchSearchable flips indexed for ids inside tx and commits it.
// Returns the ids actually updated. The transaction is finished either way.
func (r *Repo) SetBatchSearchable(ctx context.Context, tx domain.Tx, ids []int64) ([]int64, error) {
	ptx, ok := tx.(pgx.Tx)
	if !ok {
		return nil, &domain.PersistenceError{Op: "set searchable", Err: fmt.Errorf("foreign transaction %T", tx)}
	}

	var updated []int64
	if len(ids) > 0 {
		rows, err := ptx.Query(ctx, "UPDATE recipes SET indexed = TRUE, index_attempts = 0 WHERE id = ANY($1) RETURNING id", ids)
		if err != nil {
			_ = ptx.Rollback(ctx)
			return nil, &domain.PersistenceError{Op: "set searchable", Err: err}
		}
		updated, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			_ = ptx.Rollback(ctx)
			return nil, &domain.PersistenceError{Op: "set searchable", Err: err}
		}
	}

	if err := ptx.Commit(ctx); err != nil {
		return nil, &domain.PersistenceError{Op: "commit", Err: err}
	}
	return updated, nil
}

// Get returns one recipe.
func (r *Repo) Get(ctx context.Context, id int64) (domain.Recipe, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+recipeColumns+" FROM recipes WHERE id = $1", id)
	rec, err := scanRecipe(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Recipe{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Recipe{}, &domain.PersistenceError{Op: "get", Err: err}
	}
	return rec, nil
}

// List returns one page of recipes, most recently updated first, and the total count.
func (r *Repo) List(ctx context.Context, offset, limit int) ([]domain.Recipe, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM recipes").Scan(&total); err != nil {
		return nil, 0, &domain.PersistenceError{Op: "count", Err: err}
	}

	rows, err := r.pool.Query(ctx,
		"SELECT "+recipeColumns+" FROM recipes ORDER BY updated_at DESC, id DESC OFFSET $1 LIMIT $2",
		offset, limit)
	if err != nil {
		return nil, 0, &domain.PersistenceError{Op: "list", Err: err}
	}
	recipes, err := collectRecipes(rows)
	if err != nil {
		return nil, 0, &domain.PersistenceError{Op: "list", Err: err}
	}
	return recipes, total, nil
}

// Create inserts a dirty row and announces it on the index channel in the same transaction.
func (r *Repo) Create(ctx context.Context, rec *domain.Recipe) (int64, error) {
	ingredients, err := encodeIngredients(rec.Ingredients)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.inTx(ctx, "create", func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO recipes (name, description, ingredients, liked, embedding, indexed)
			 VALUES ($1, $2, $3::jsonb, $4, $5, FALSE) RETURNING id`,
			rec.Name, rec.Description, ingredients, rec.Liked, embeddingParam(rec.Embedding),
		).Scan(&id); err != nil {
			return err
		}
		return postgres.Notify(ctx, tx, r.channel, strconv.FormatInt(id, 10))
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update replaces the content of a row, marks it dirty and announces it.
func (r *Repo) Update(ctx context.Context, rec *domain.Recipe) error {
	ingredients, err := encodeIngredients(rec.Ingredients)
	if err != nil {
		return err
	}

	return r.inTx(ctx, "update", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE recipes
			    SET name = $2, description = $3, ingredients = $4::jsonb, liked = $5,
			        embedding = $6, indexed = FALSE, index_attempts = 0, updated_at = now()
			  WHERE id = $1`,
			rec.ID, rec.Name, rec.Description, ingredients, rec.Liked, embeddingParam(rec.Embedding))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return postgres.Notify(ctx, tx, r.channel, strconv.FormatInt(rec.ID, 10))
	})
}

// Delete removes a row. Index cleanup is the caller's job.
func (r *Repo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM recipes WHERE id = $1", id)
	if err != nil {
		return &domain.PersistenceError{Op: "delete", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDirty resets indexed for one recipe (announcing it) or, with id nil, for all.
// Returns the number of rows reset.
func (r *Repo) MarkDirty(ctx context.Context, id *int64) (int64, error) {
	var affected int64
	err := r.inTx(ctx, "mark dirty", func(tx pgx.Tx) error {
		if id == nil {
			tag, err := tx.Exec(ctx, "UPDATE recipes SET indexed = FALSE, index_attempts = 0 WHERE indexed")
			if err != nil {
				return err
			}
			affected = tag.RowsAffected()
			return nil
		}
		tag, err := tx.Exec(ctx, "UPDATE recipes SET indexed = FALSE, index_attempts = 0 WHERE id = $1", *id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		affected = tag.RowsAffected()
		return postgres.Notify(ctx, tx, r.channel, strconv.FormatInt(*id, 10))
	})
	return affected, err
}

// PendingCount returns the number of rows waiting for indexing.
func (r *Repo) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM recipes WHERE NOT indexed").Scan(&n); err != nil {
		return 0, &domain.PersistenceError{Op: "pending count", Err: err}
	}
	return n, nil
}

func (r *Repo) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &domain.PersistenceError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return &domain.PersistenceError{Op: op, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &domain.PersistenceError{Op: op + " commit", Err: err}
	}
	return nil
}

func scanRecipe(row pgx.Row) (domain.Recipe, error) {
	var (
		rec         domain.Recipe
		ingredients []byte
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &ingredients, &rec.Liked, &rec.Embedding, &rec.Indexed); err != nil {
		return domain.Recipe{}, err
	}
	list, err := decodeIngredients(ingredients)
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("recipe %d: %w", rec.ID, err)
	}
	rec.Ingredients = list
	return rec, nil
}

func collectRecipes(rows pgx.Rows) ([]domain.Recipe, error) {
	defer rows.Close()

	var out []domain.Recipe
	for rows.Next() {
		rec, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeIngredients(list []domain.Ingredient) (string, error) {
	if list == nil {
		list = []domain.Ingredient{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode ingredients: %w", err)
	}
	return string(data), nil
}

func decodeIngredients(data []byte) ([]domain.Ingredient, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var list []domain.Ingredient
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode ingredients: %w", err)
	}
	return list, nil
}

// embeddingParam maps an empty vector to SQL NULL.
func embeddingParam(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return v
}
