// Command create_admin provisions or promotes an administrator account.
// Usage: create_admin -email admin@example.com [-username admin] [-password secret]
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/lukaiqi/educhat/internal/db"
	"github.com/lukaiqi/educhat/internal/models"
	"github.com/lukaiqi/educhat/internal/utils"
)

func main() {
	email := flag.String("email", "", "email of the admin account")
	username := flag.String("username", "admin", "username for a newly created account")
	password := flag.String("password", "", "password for a newly created account")
	flag.Parse()

	if *email == "" {
		log.Fatal("create_admin: -email is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	users := db.NewUsers(postgres)

	user, err := users.GetUserByEmail(ctx, *email)
	switch {
	case err == nil:
		if _, err := postgres.Pool.Exec(ctx, "UPDATE users SET is_admin = TRUE, updated_at = NOW() WHERE id = $1", user.ID); err != nil {
			log.Fatalf("promote user: %v", err)
		}
		log.Printf("promoted %s (%s) to admin", user.Username, user.Email)
	case errors.Is(err, db.ErrUserNotFound):
		if *password == "" {
			log.Fatal("create_admin: account does not exist; -password is required to create it")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}

		now := time.Now().UTC()
		admin := &models.User{
			ID:           uuid.NewString(),
			Username:     *username,
			Email:        *email,
			PasswordHash: string(hash),
			Role:         models.RoleTeacher,
			IsAdmin:      true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := users.CreateUser(ctx, admin); err != nil {
			log.Fatalf("create admin: %v", err)
		}
		log.Printf("created admin %s (%s)", admin.Username, admin.Email)
	default:
		log.Fatalf("lookup user: %v", err)
	}
}
