// Command seed loads the demo flower-shop dataset into the catalog and
// transactions databases.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/timour/ucp-merchant/common/config"
	"github.com/timour/ucp-merchant/common/logger"
	"github.com/timour/ucp-merchant/store"
)

type product struct {
	id       string
	title    string
	price    int
	imageURL string
	stock    int
}

var products = []product{
	{"rose", "Red Rose", 1000, "https://cdn.ucp-flower-shop.dev/rose.png", 5},
	{"tulip", "Yellow Tulip", 750, "https://cdn.ucp-flower-shop.dev/tulip.png", 2},
	{"orchid", "White Orchid", 2500, "https://cdn.ucp-flower-shop.dev/orchid.png", 10},
	{"bouquet", "Seasonal Bouquet", 4500, "https://cdn.ucp-flower-shop.dev/bouquet.png", 8},
	{"vase", "Glass Vase", 1500, "https://cdn.ucp-flower-shop.dev/vase.png", 20},
}

func main() {
	envErr := godotenv.Load()
	log := logger.New("seed")
	if envErr != nil {
		log.Info("no .env file found, using environment")
	}

	catalogPath, ok := config.LookupEnv("CATALOG_DB_PATH")
	if !ok {
		log.Error("CATALOG_DB_PATH is required")
		os.Exit(1)
	}
	transactionsPath, ok := config.LookupEnv("TRANSACTIONS_DB_PATH")
	if !ok {
		log.Error("TRANSACTIONS_DB_PATH is required")
		os.Exit(1)
	}

	stores, err := store.Open(catalogPath, transactionsPath)
	if err != nil {
		log.Error("failed to open stores", slog.Any("error", err))
		os.Exit(1)
	}
	defer stores.Close()

	ctx := context.Background()
	if err := seed(ctx, stores, log); err != nil {
		log.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("seeding complete",
		slog.String("catalog_db", catalogPath),
		slog.String("transactions_db", transactionsPath),
	)
}

func seed(ctx context.Context, stores *store.Stores, log *slog.Logger) error {
	catalog, transactions := stores.CatalogDB(), stores.TransactionsDB()

	for _, p := range products {
		if _, err := catalog.ExecContext(ctx,
			`INSERT INTO products (id, title, price, image_url) VALUES (?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET title = excluded.title, price = excluded.price, image_url = excluded.image_url`,
			p.id, p.title, p.price, p.imageURL,
		); err != nil {
			return err
		}
		if _, err := transactions.ExecContext(ctx,
			`INSERT INTO inventory (product_id, quantity) VALUES (?, ?)
			 ON CONFLICT (product_id) DO UPDATE SET quantity = excluded.quantity`,
			p.id, p.stock,
		); err != nil {
			return err
		}
		log.Info("seeded product", slog.String("id", p.id), slog.Int("stock", p.stock))
	}

	if _, err := catalog.ExecContext(ctx,
		`INSERT INTO promotions (id, type, min_subtotal, eligible_item_ids, description)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET type = excluded.type, min_subtotal = excluded.min_subtotal,
			eligible_item_ids = excluded.eligible_item_ids, description = excluded.description`,
		"promo_free_shipping", "free_shipping", 5000, `["bouquet"]`,
		"Free standard shipping over $50 or with any seasonal bouquet",
	); err != nil {
		return err
	}

	rates := []store.ShippingRate{
		{ID: "std-ship", CountryCode: "default", ServiceLevel: "standard", Price: 500, Title: "Standard Shipping"},
		{ID: "exp-ship", CountryCode: "default", ServiceLevel: "express", Price: 1500, Title: "Express Shipping"},
		{ID: "std-ship-us", CountryCode: "US", ServiceLevel: "standard", Price: 500, Title: "USPS Ground Advantage"},
		{ID: "exp-ship-us", CountryCode: "US", ServiceLevel: "express", Price: 1200, Title: "USPS Priority Mail"},
	}
	for _, r := range rates {
		if _, err := transactions.ExecContext(ctx,
			`INSERT INTO shipping_rates (id, country_code, service_level, price, title)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET country_code = excluded.country_code,
				service_level = excluded.service_level, price = excluded.price, title = excluded.title`,
			r.ID, r.CountryCode, r.ServiceLevel, r.Price, r.Title,
		); err != nil {
			return err
		}
	}

	discounts := []store.Discount{
		{Code: "10OFF", Type: "percentage", Value: 10, Description: "10% off your order"},
		{Code: "WELCOME5", Type: "fixed_amount", Value: 500, Description: "$5 off your first order"},
	}
	for _, d := range discounts {
		if _, err := transactions.ExecContext(ctx,
			`INSERT INTO discounts (code, type, value, description) VALUES (?, ?, ?, ?)
			 ON CONFLICT (code) DO UPDATE SET type = excluded.type, value = excluded.value, description = excluded.description`,
			d.Code, d.Type, d.Value, d.Description,
		); err != nil {
			return err
		}
	}

	return seedCustomer(ctx, transactions)
}

// seedCustomer creates one returning customer with a saved address so the
// address book path is exercisable out of the box.
func seedCustomer(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO customers (id, name, email) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email`,
		"cust_demo", "Jamie Rivera", "jamie@example.com",
	); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO customer_addresses (id, customer_id, street_address, city, state, postal_code, country)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET street_address = excluded.street_address, city = excluded.city,
			state = excluded.state, postal_code = excluded.postal_code, country = excluded.country`,
		"addr_demo", "cust_demo", "123 Garden Way", "Portland", "OR", "97201", "US",
	)
	return err
}
