package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cloudrbac.org/internal/auth"
	"cloudrbac.org/internal/config"
	"cloudrbac.org/internal/migrate"
	"cloudrbac.org/internal/store/pg"
)

const superAdminRoleID = "role_super_admin"

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv(config.EnvDSN), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "migrations", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatalf("missing DSN: provide via -dsn or %s", config.EnvDSN)
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|bootstrap-admin]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runner := migrate.NewRunner(db, *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "seed":
		err = runner.Seed(ctx)
	case "status":
		var history []string
		history, err = runner.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "bootstrap-admin":
		err = bootstrapAdmin(ctx, db)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// bootstrapAdmin creates the initial administrator account and gives it the
// seeded Super Admin role. The password comes from RBAC_ADMIN_PASSWORD so it
// never lands in a seed file. Reruns are no-ops once the account exists.
func bootstrapAdmin(ctx context.Context, db *sql.DB) error {
	password := os.Getenv("RBAC_ADMIN_PASSWORD")
	if password == "" {
		return errors.New("RBAC_ADMIN_PASSWORD is required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	store := pg.New(db)
	if _, err := store.FindUserByUsername(ctx, "admin"); err == nil {
		log.Println("admin account already exists")
		return nil
	} else if !errors.Is(err, auth.ErrNotFound) {
		return err
	}

	user, err := store.CreateUser(ctx, auth.User{
		Username:     "admin",
		Email:        "admin@cloudrbac.local",
		PasswordHash: hash,
		FirstName:    "System",
		LastName:     "Administrator",
		Status:       auth.UserStatusActive,
	})
	if err != nil {
		return err
	}
	if _, err := store.AssignRole(ctx, user.ID, superAdminRoleID); err != nil {
		return fmt.Errorf("assign super admin role (run seed first): %w", err)
	}
	log.Printf("created admin account %s", user.ID)
	return nil
}
