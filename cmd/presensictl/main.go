package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"presensi/internal/attendance"
	"presensi/internal/auth"
	"presensi/internal/config"
	"presensi/internal/directory"
	"presensi/internal/session"
	"presensi/internal/store"
)

var (
	cfg          config.App
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "presensictl",
	Short:         "Operator tool for the presensi portal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		config.SetupLogging(cfg)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(issueTokenCmd(), verifyTokenCmd())
	rootCmd.AddCommand(deviceCmd())
	rootCmd.AddCommand(classifyCmd())
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
			printResult(map[string]any{"migrations": "up to date"})
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a Super Admin account with a temporary password",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			if id == "" || email == "" {
				return fmt.Errorf("--id and --email are required")
			}
			if name == "" {
				name = id
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
			db, err := store.NewDB(ctx, cfg.DatabaseURL, 5*time.Second)
			if err != nil {
				return err
			}
			defer db.Close()

			temp, err := auth.TempPassword()
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(temp)
			if err != nil {
				return err
			}
			acct := directory.Account{
				Identity: directory.Identity{
					SubjectID:   id,
					Email:       email,
					DisplayName: name,
					Role:        directory.RoleSuperAdmin,
					Status:      directory.StatusActive,
				},
				PasswordHash: hash,
			}
			if err := directory.NewRepository(db.Client).Create(ctx, acct); err != nil {
				return fmt.Errorf("create %s: %w", id, err)
			}
			printResult(map[string]any{"subject_id": id, "email": email, "temp_password": temp})
			return nil
		},
	}
	cmd.Flags().String("id", "", "Subject id")
	cmd.Flags().String("email", "", "Login email")
	cmd.Flags().String("name", "", "Display name")
	return cmd
}

func issueTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue-token <subject-id>",
		Short: "Issue a session token with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := session.NewService([]byte(cfg.SessionSecret), cfg.SessionTTL)
			if err != nil {
				return err
			}
			tok, err := svc.Issue(args[0])
			if err != nil {
				return err
			}
			printResult(map[string]any{"token": tok, "limiter_key": session.LimiterKey(tok)})
			return nil
		},
	}
}

func verifyTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-token <token>",
		Short: "Verify a session token and print its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := session.NewService([]byte(cfg.SessionSecret), cfg.SessionTTL)
			if err != nil {
				return err
			}
			p, err := svc.Verify(args[0])
			if err != nil {
				return err
			}
			printResult(map[string]any{
				"subject_id": p.SubjectID,
				"issued_at":  p.IssuedTime().Format(time.RFC3339),
				"expires_at": p.IssuedTime().Add(cfg.SessionTTL).Format(time.RFC3339),
			})
			return nil
		},
	}
}

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device-token <device-id>",
		Short: "Issue kiosk device tokens without going through the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			by, _ := cmd.Flags().GetString("by")
			issuer, err := auth.NewIssuer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.DeviceTokenTTL, cfg.RefreshTTL)
			if err != nil {
				return err
			}
			pair, err := issuer.Issue(args[0], by)
			if err != nil {
				return err
			}
			printResult(map[string]any{
				"access_token":       pair.AccessToken,
				"refresh_token":      pair.RefreshToken,
				"access_expires_at":  pair.AccessExp.Format(time.RFC3339),
				"refresh_expires_at": pair.RefreshExp.Format(time.RFC3339),
			})
			return nil
		},
	}
	cmd.Flags().String("by", "presensictl", "Recorded as the registering operator")
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <HH:MM>",
		Short: "Show the status a scan at the given local time would receive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minute, err := config.ParseMinuteOfDay(args[0])
			if err != nil {
				return err
			}
			status, qualifier := attendance.Classify(minute, cfg.Window)
			printResult(map[string]any{
				"time":      config.FormatMinuteOfDay(minute),
				"status":    string(status),
				"qualifier": qualifier,
				"windows":   cfg.Window.String(),
			})
			return nil
		},
	}
}

func printResult(data map[string]any) {
	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(data)
		return
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%v\n", k, data[k])
	}
	_ = w.Flush()
}
