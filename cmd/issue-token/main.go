// Command issue-token signs a development access token with the configured JWT secret,
// for calling the API locally without the identity service.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/julioctb/Dashboard-pletorica-sub001/internal/models"
	"github.com/julioctb/Dashboard-pletorica-sub001/internal/service"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/config"
	"github.com/julioctb/Dashboard-pletorica-sub001/pkg/logger"
)

func main() {
	var (
		userID    = flag.String("user", "", "user id (random when empty)")
		role      = flag.String("role", string(models.RoleReviewer), "ADMIN, REVIEWER or VENDOR")
		companyID = flag.String("company", "", "company id, required for VENDOR")
		email     = flag.String("email", "", "email claim")
		expiry    = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Env == config.EnvProduction {
		log.Fatal("refusing to issue tokens in production")
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: *expiry,
		Issuer:            cfg.JWT.Issuer,
	})

	token, expiresAt, err := auth.IssueToken(models.UserInfo{
		ID:        *userID,
		Email:     *email,
		Role:      models.UserRole(strings.ToUpper(strings.TrimSpace(*role))),
		CompanyID: *companyID,
	})
	if err != nil {
		logr.Fatal("failed to sign token", zap.Error(err))
	}
	// the API would reject it anyway; fail here with the reason
	if _, err := auth.ValidateToken(token); err != nil {
		logr.Fatal("issued token is not accepted by the API", zap.Error(err))
	}

	logr.Info("token issued", zap.String("role", *role), zap.Time("expires_at", expiresAt))
	fmt.Println(token)
}
