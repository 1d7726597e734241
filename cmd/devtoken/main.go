// Command devtoken mints a bearer token for local testing against the API.
//
//	devtoken -sub 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266 -ttl 1h
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "contribgate/internal/jwt_token"
	"contribgate/internal/platform/config"
	"contribgate/pkg/domain"
)

func main() {
	sub := flag.String("sub", "", "account address to put in the token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*sub, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
}

func run(sub string, ttl time.Duration) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		return errors.New("refusing to mint tokens with ENVIRONMENT=production")
	}
	subject := cfg.Campaign.Owner
	if sub != "" {
		if subject, err = domain.ParseAddress(sub); err != nil {
			return err
		}
	}

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	token, err := jwt.GenerateAccessToken(subject, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
