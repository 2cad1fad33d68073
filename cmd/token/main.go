// Command token mints an HS256 access token accepted by the article service
// when JWT_SECRET is configured.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/internal/config"
	"github.com/lumenpress/lumen/backend/go-services/internal/tokens"
	"github.com/lumenpress/lumen/backend/go-services/pkg/logger"
)

func main() {
	sub := flag.String("sub", "", "subject (required)")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email address")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_ACCESS_TOKEN_TTL)")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "usage: token -sub <subject> [-name n] [-email e] [-ttl 1h]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.JWT.AccessTokenTTL
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	tok, err := tokens.GenerateAccessToken(cfg.JWT.Secret, article.Principal{Subject: *sub, Name: *name, Email: *email}, lifetime)
	if err != nil {
		logger.Fatalf("generate token: %v", err)
	}
	fmt.Println(tok)
}
