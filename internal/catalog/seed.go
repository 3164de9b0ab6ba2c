package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

type seedDish struct {
	name        string
	category    string
	price       float64
	description string
}

var seedCategories = []struct {
	name  string
	image string
}{
	{"Пицца", "pizza.jpg"},
	{"Бургеры", "burger.jpg"},
	{"Суши", "sushi.jpg"},
	{"Напитки", "drinks.jpg"},
}

var seedDishes = []seedDish{
	{"Пепперони", "Пицца", 450, "Пицца с пепперони и сыром"},
	{"Маргарита", "Пицца", 380, "Классическая пицца с томатами и сыром"},
	{"Чизбургер", "Бургеры", 250, "Бургер с говяжьей котлетой и сыром"},
	{"Филадельфия", "Суши", 320, "Ролл с лососем и сливочным сыром"},
	{"Кола", "Напитки", 100, "Газированный напиток"},
}

// Seed inserts the starter categories and dishes, skipping any that already
// exist. Safe to run repeatedly.
func (w *Writer) Seed(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	categoryIDs := make(map[string]int64, len(seedCategories))
	for _, c := range seedCategories {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM categories WHERE name = $1`, c.name).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(ctx,
				`INSERT INTO categories (name, image) VALUES ($1, $2) RETURNING id`,
				c.name, c.image).Scan(&id)
		}
		if err != nil {
			return fmt.Errorf("seed category %q: %w", c.name, err)
		}
		categoryIDs[c.name] = id
	}

	for _, d := range seedDishes {
		catID := categoryIDs[d.category]
		var dishID int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM dishes WHERE name = $1 AND category_id = $2`,
			d.name, catID).Scan(&dishID)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("seed dish lookup %q: %w", d.name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO dishes (name, description, price, category_id, is_available, image)
			 VALUES ($1, $2, $3, $4, TRUE, $5)`,
			d.name, d.description, d.price, catID,
			strings.ToLower(d.name)+".jpg"); err != nil {
			return fmt.Errorf("seed dish %q: %w", d.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}
