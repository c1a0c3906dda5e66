package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/catalog"
	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		catalogFile string
		jwtKey      string
		jwtIssuer   string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&jwtKey, "jwt-key", "", "print development tokens for seeded users signed with this key (or JWT_KEY env)")
	flag.StringVar(&jwtIssuer, "jwt-issuer", "platter", "issuer of development tokens")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of development tokens")
	flag.Parse()

	lg := zap.Must(zap.NewDevelopment())
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if jwtKey == "" {
		jwtKey = os.Getenv("JWT_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := run(ctx, lg, databaseURL, catalogFile)
	if err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")

	if jwtKey != "" {
		if err := printTokens(c, auth.NewTokens([]byte(jwtKey), jwtIssuer), tokenTTL); err != nil {
			lg.Fatal("Issue tokens", zap.Error(err))
		}
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogFile string) (*catalog.Catalog, error) {
	lg.Info("Reading catalog", zap.String("path", catalogFile))
	c, err := catalog.ReadFile(catalogFile)
	if err != nil {
		return nil, err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	if err := postgres.Seed(ctx, postgres.NewStore(pool), c); err != nil {
		return nil, errors.Wrap(err, "seed catalog")
	}
	lg.Info("Catalog upserted",
		zap.Int("users", len(c.Users)),
		zap.Int("restaurants", len(c.Restaurants)),
		zap.Int("couriers", len(c.Couriers)),
		zap.Int("coupons", len(c.Coupons)),
	)
	return c, nil
}

// printTokens writes one bearer token per seeded user to stdout.
func printTokens(c *catalog.Catalog, tokens *auth.Tokens, ttl time.Duration) error {
	for _, u := range c.Users {
		tok, err := tokens.Issue(auth.Principal{UserID: u.ID, Role: auth.Role(u.Role)}, ttl)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", u.ID)
		}
		fmt.Printf("%s\t%s\t%s\n", u.ID, u.Role, tok)
	}
	return nil
}
