// Command issue-token mints a bearer token for local development against the
// secret configured in .env or the environment.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/service"
	"github.com/noah-isme/course-registration-api/pkg/config"
)

func main() {
	userID := flag.String("user", "", "user id carried by the token (student, faculty or admin id)")
	role := flag.String("role", string(models.RoleStudent), "ADMIN, FACULTY or STUDENT")
	name := flag.String("name", "", "optional display name")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Expiration: cfg.JWT.Expiration})
	token, expiresAt, err := tokens.Issue(*userID, models.UserRole(*role), *name)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format("2006-01-02T15:04:05Z07:00"))
}
