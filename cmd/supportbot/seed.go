package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"techsupport.dev/assistant/internal/auth"
	"techsupport.dev/assistant/internal/config"
	"techsupport.dev/assistant/internal/core"
	"techsupport.dev/assistant/internal/knowledge"
	"techsupport.dev/assistant/internal/store"
)

type SeedFlags struct {
	DataFile string
	SkipUser bool
}

func (f *SeedFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.DataFile, "data", "", "Knowledge base YAML file, defaults to KNOWLEDGE_DATA or the built-in sample")
	fs.BoolVar(&f.SkipUser, "skip-admin", false, "Do not create the ADMIN_EMAIL user")
}

func NewSeedCommand() *cobra.Command {
	f := &SeedFlags{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the knowledge base into an empty store and create the admin user",
		Long: `Load categories, questions and solution steps into the store configured by
DATABASE_URL. Nothing is loaded when the store already holds questions. Ids
from the data file are kept so pattern rules keep pointing at the right
questions.

When ADMIN_EMAIL and ADMIN_PASSWORD are set, an admin account is created
unless one with that email exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configErr != nil && !errors.Is(configErr, config.ErrMissingJWTSecret) {
				return configErr
			}
			if f.DataFile == "" {
				f.DataFile = config.AppConfig.KnowledgeData
			}

			ds, err := knowledge.LoadDataset(f.DataFile)
			if err != nil {
				return err
			}

			s, err := store.Open(config.AppConfig.DatabaseURL)
			if err != nil {
				return errors.WithMessage(err, "could not open store")
			}
			defer s.Close()

			ctx := context.Background()
			n, err := ds.Seed(ctx, s)
			if err != nil {
				return err
			}
			log.WithField("questions", n).Info("knowledge base seeded")

			if f.SkipUser {
				return nil
			}
			return ensureAdmin(ctx, s)
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

// ensureAdmin creates the configured admin account if it is missing.
func ensureAdmin(ctx context.Context, s store.Store) error {
	email, password := config.AppConfig.AdminEmail, config.AppConfig.AdminPassword
	if email == "" || password == "" {
		log.Debug("ADMIN_EMAIL or ADMIN_PASSWORD not set, skipping admin account")
		return nil
	}

	existing, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		if !existing.IsAdmin() {
			log.WithField("email", email).Warn("configured admin email belongs to a member account")
		}
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &store.User{Email: email, Name: config.AppConfig.AdminName, PasswordHash: hash, Role: store.RoleAdmin}
	if err := s.CreateUser(ctx, admin); err != nil {
		return errors.WithMessage(err, "could not create admin account")
	}
	log.WithField("email", admin.Email).Info("admin account created")
	return nil
}

// buildPatterns compiles the dataset's pattern rules for the matcher.
func buildPatterns(ds *knowledge.Dataset) ([]core.Pattern, error) {
	rules := ds.PatternRules()
	patterns := make([]core.Pattern, 0, len(rules))
	for _, rule := range rules {
		p, err := core.NewPattern(rule.Name, rule.Expr, rule.QuestionID)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}
