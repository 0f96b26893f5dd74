package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"vigil/internal/config"
	"vigil/internal/database"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		path       = flag.String("path", "migrations", "path to migration files")
		up         = flag.Bool("up", false, "apply pending migrations")
		down       = flag.Bool("down", false, "roll back all migrations")
		version    = flag.Bool("version", false, "print the current migration version")
		force      = flag.Int("force", -1, "force the migration version (repairs a dirty state)")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, *path)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	defer migrator.Close()

	switch {
	case *down:
		if err := migrator.Down(); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
		log.Println("rollback complete")
	case *version:
		v, err := migrator.Version()
		if err != nil {
			log.Fatalf("version check failed: %v", err)
		}
		log.Printf("current version: %d", v)
	case *force >= 0:
		if err := migrator.Force(*force); err != nil {
			log.Fatalf("force failed: %v", err)
		}
		log.Printf("forced version to %d", *force)
	case *up:
		fallthrough
	default:
		if err := migrator.Up(); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		log.Println("migrations complete")
	}
}
