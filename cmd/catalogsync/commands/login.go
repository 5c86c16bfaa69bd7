package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/validation"

	"github.com/spf13/cobra"
)

const passwordEnv = "CATALOGSYNC_PASSWORD"

// NewLoginCommand signs in and persists the session in the configured store.
func NewLoginCommand() *cobra.Command {
	var (
		configFile string
		logLevel   string
		email      string
		password   string
		register   string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the catalog backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}

			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			zapLogger := newLogger(cfg, logLevel)
			defer zapLogger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			a, err := newApp(ctx, cfg, zapLogger.Sugar())
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if register != "" {
				user, err := a.auth.Register(ctx, validation.RegisterForm{
					Username:        register,
					Email:           email,
					Password:        password,
					ConfirmPassword: password,
				})
				if err != nil {
					return describeError(err)
				}
				fmt.Fprintf(out, "registered %s\n", user.Username)
			}

			sess, err := a.auth.Login(ctx, validation.LoginForm{Email: email, Password: password})
			if err != nil {
				return describeError(err)
			}
			fmt.Fprintf(out, "signed in as %s\n", sess.User.Username)
			if cfg.Session.Store == "memory" || cfg.Session.Store == "" {
				fmt.Fprintln(out, "session.store is memory, the session ends with this process")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "override logging.level")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (default $"+passwordEnv+")")
	cmd.Flags().StringVar(&register, "register", "", "create the account with this username first")
	cmd.MarkFlagRequired("email")

	return cmd
}

// NewLogoutCommand clears the persisted session.
func NewLogoutCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			zapLogger := newLogger(cfg, "warn")
			defer zapLogger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			a, err := newApp(ctx, cfg, zapLogger.Sugar())
			if err != nil {
				return err
			}
			defer a.close()

			if sess, _ := a.sessions.Current(); sess == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
			if err := a.auth.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")

	return cmd
}

// describeError flattens validation fields into the message shown on the terminal.
func describeError(err error) error {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		return err
	}
	if len(appErr.Fields) == 0 {
		return errors.New(apperrors.UserMessage(err, ""))
	}

	names := make([]string, 0, len(appErr.Fields))
	for name := range appErr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+appErr.Fields[name])
	}
	return fmt.Errorf("%s (%s)", apperrors.UserMessage(err, ""), strings.Join(parts, "; "))
}
