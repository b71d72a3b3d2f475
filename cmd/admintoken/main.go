// Command admintoken prints a bearer token for the /api/v1/admin endpoints,
// signed with the server's JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/listening-room-server/internal/config"
	"github.com/listening-room-server/pkg/jwt"
)

func main() {
	operator := flag.String("operator", "cli", "Operator id recorded in the token.")
	ttl := flag.Duration("ttl", 0, "Token lifetime. Defaults to ADMIN_TOKEN_TTL.")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET is not set")
	}

	lifetime := cfg.AdminTokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, expiresAt, err := jwt.NewManager(cfg.JWTSecret, lifetime).GenerateToken(*operator)
	if err != nil {
		logrus.Fatalf("Failed to generate token: %v", err)
	}

	logrus.WithField("expires_at", expiresAt.Format(time.RFC3339)).Info("Token issued")
	fmt.Println(token)
}
