// Package main seeds demo recipients for local development and prints a
// development token for each of them.
//
// Recipients are upserted, so the command is safe to run repeatedly.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/api/middleware"
	"givedesk.io/backoffice/internal/app/modules"
	"givedesk.io/backoffice/internal/config"
	"givedesk.io/backoffice/internal/domain"
	"givedesk.io/backoffice/internal/infrastructure"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/store"
)

// seedNamespace derives stable recipient ids from their names.
var seedNamespace = uuid.MustParse("6f1f6f0c-5d8e-4b0e-9a43-2f3c1d9b7e10")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	if err := infrastructure.ApplySchema(ctx, db.Pool); err != nil {
		return err
	}

	logger.Info("Starting data seeding...")

	dir := store.NewDirectory(db.Pool)
	jwtCfg := modules.NewJWTConfig(cfg)
	for _, r := range demoRecipients() {
		if err := dir.Upsert(ctx, r); err != nil {
			return fmt.Errorf("seed %s %s: %w", r.Role, r.Name, err)
		}
		token, expiresAt, err := middleware.GenerateToken(jwtCfg, r.ID, r.Role, r.Name)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", r.Name, err)
		}
		logger.Info("Seeded recipient",
			zap.String("role", string(r.Role)),
			zap.String("id", r.ID),
			zap.String("name", r.Name),
		)
		fmt.Printf("%-12s %s\n  token (expires %s): %s\n", r.Role, r.ID, expiresAt.Format("2006-01-02 15:04"), token)
	}

	logger.Info("Data seeding completed successfully")
	return nil
}

func recipientID(role domain.RecipientRole, name string) string {
	return uuid.NewSHA1(seedNamespace, []byte(string(role)+"/"+name)).String()
}

// demoRecipients returns one recipient per role. Only the contributor opts
// into promotional messages.
func demoRecipients() []*domain.Recipient {
	contributorPrefs := domain.DefaultPreferences()
	contributorPrefs.Types[domain.CategoryPromotional] = true

	return []*domain.Recipient{
		{
			ID: recipientID(domain.RoleAdmin, "Ada Admin"), Role: domain.RoleAdmin,
			Name: "Ada Admin", Email: "ada.admin@givedesk.test",
		},
		{
			ID: recipientID(domain.RoleStaff, "Sam Staff"), Role: domain.RoleStaff,
			Name: "Sam Staff", Email: "sam.staff@givedesk.test",
		},
		{
			ID: recipientID(domain.RoleContributor, "Cory Contributor"), Role: domain.RoleContributor,
			Name: "Cory Contributor", Email: "cory@givedesk.test",
			PushTokens:  []string{"ExponentPushToken[demo-contributor-device]"},
			Preferences: &contributorPrefs,
		},
		{
			ID: recipientID(domain.RoleBeneficiary, "Bea Beneficiary"), Role: domain.RoleBeneficiary,
			Name: "Bea Beneficiary",
		},
	}
}
