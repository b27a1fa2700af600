// Command session mints a session token for local testing, signed with the
// configured key so the server accepts it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"marketgen/internal/config"
	"marketgen/pkg/session"
)

func main() {
	openID := flag.String("open-id", "", "external login id of the user (required)")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email address")
	method := flag.String("login-method", "dev", "login method recorded on the user")
	flag.Parse()

	if strings.TrimSpace(*openID) == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ttl, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	manager, err := session.NewManagerFromPEM(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, session.Options{
		KeyID:    cfg.JWTKeyID,
		TTL:      ttl,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init sessions: %v", err)
	}
	token, err := manager.Issue(session.Identity{
		OpenID:      *openID,
		Name:        *name,
		Email:       *email,
		LoginMethod: *method,
	})
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
}
