// Command clinicctl runs one-off maintenance tasks: schema migrations,
// reference data seeding and bootstrapping the first administrator.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/auth"
	"github.com/mesikahq/clinic-records/internal/config"
	"github.com/mesikahq/clinic-records/internal/database"
	"github.com/mesikahq/clinic-records/internal/db/migrate"
	"github.com/mesikahq/clinic-records/internal/db/migrations"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/doctor"
	"github.com/mesikahq/clinic-records/internal/patient"
	"github.com/mesikahq/clinic-records/internal/seed"
)

var configFile string

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Clinic records maintenance commands",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml (defaults to the usual search paths)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withManager := func(run func(ctx context.Context, m *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := migrate.Open(cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			manager := migrate.NewManager(db, migrations.FS)
			manager.SetOutput(cmd.OutOrStdout())
			if err := manager.Initialize(ctx); err != nil {
				return fmt.Errorf("failed to initialize migrations: %w", err)
			}
			return run(ctx, manager)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
			return m.Up(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied migration",
		RunE: withManager(func(ctx context.Context, m *migrate.Manager) error {
			return m.Down(ctx)
		}),
	})

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
	}
	statusCmd.RunE = withManager(func(ctx context.Context, m *migrate.Manager) error {
		all, err := m.LoadMigrations()
		if err != nil {
			return err
		}
		applied, err := m.GetAppliedMigrations(ctx)
		if err != nil {
			return err
		}

		out := statusCmd.OutOrStdout()
		fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
		for _, mg := range all {
			status, appliedAt := "pending", ""
			if at, ok := applied[mg.Version]; ok {
				status = "applied"
				appliedAt = at.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", mg.Version, mg.Name, status, appliedAt)
		}
		return nil
	})
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load roles and the specialty catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := seed.Default()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := database.Connect(ctx, database.PostgresConfigFrom(cfg.Database))
			if err != nil {
				return err
			}
			defer database.Disconnect(pool)

			res, err := seed.Apply(ctx, pool, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d role(s) and %d specialt(ies); existing rows were left as they were.\n",
				res.RolesCreated, res.SpecialtiesCreated)
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var in auth.CreateUserInput
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := database.Connect(ctx, database.PostgresConfigFrom(cfg.Database))
			if err != nil {
				return err
			}
			defer database.Disconnect(pool)

			auditService := audit.NewService(nil, cfg.Elasticsearch.IndexPrefix)
			authService := auth.NewService(
				auth.NewPostgresUserStore(pool),
				patient.NewService(pool, auditService),
				doctor.NewService(pool, auditService),
				auditService,
				auth.ServiceConfig{JWTSecret: cfg.Auth.JWTSecret, TokenExpiry: cfg.Auth.TokenExpiry},
			)

			// There is no user yet to act as; the command runs as a system administrator.
			system := directory.Requester{Role: directory.RoleAdmin}
			in.RoleCode = string(directory.RoleAdmin)
			user, err := authService.CreateUser(ctx, system, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Administrator %s created with id %d\n", user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "Administrator email")
	cmd.Flags().StringVar(&in.Password, "password", "", "Administrator password")
	cmd.Flags().StringVar(&in.FirstName, "nombre", "Admin", "First name")
	cmd.Flags().StringVar(&in.LastName, "apellido", "Sistema", "Last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
