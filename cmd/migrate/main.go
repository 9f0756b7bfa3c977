package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gestix.app/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("GESTIX_DATABASE_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory with SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Directory with SQL seeds (default: embedded)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or GESTIX_DATABASE_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|pending]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db,
		dirOr(*migrationsPath, migrate.Migrations()),
		dirOr(*seedsPath, migrate.Seeds()),
	)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status", "pending":
		var items []string
		if flag.Arg(0) == "status" {
			items, err = mgr.Status(ctx)
		} else {
			items, err = mgr.Pending(ctx)
		}
		if err == nil {
			for _, item := range items {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// dirOr prefers an on-disk directory over the files built into the binary.
func dirOr(path string, embedded fs.FS) fs.FS {
	if path == "" {
		return embedded
	}
	return os.DirFS(path)
}
