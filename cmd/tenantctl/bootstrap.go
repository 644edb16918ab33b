package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/auth"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/spf13/cobra"
)

var bootstrapInput service.BootstrapInput

func init() {
	f := bootstrapCmd.Flags()
	f.StringVar(&bootstrapInput.Email, "email", "", "Email of the first super admin")
	f.StringVar(&bootstrapInput.FirstName, "first-name", "", "First name")
	f.StringVar(&bootstrapInput.LastName, "last-name", "", "Last name")
	_ = bootstrapCmd.MarkFlagRequired("email")
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the first super admin",
	Long: `Create the first super admin of a fresh installation. The password is read
from TENANTKIT_BOOTSTRAP_PASSWORD or, when unset, from standard input.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		password, err := readPassword()
		if err != nil {
			return err
		}

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		users := repository.NewUserRepository(db.Gorm)
		activity := service.NewActivityLogService(repository.NewActivityLogRepository(db.Gorm), service.NewAdminGate(users), nil)
		tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpiryPeriod)
		onboarding := service.NewOnboardingService(users, auth.NewPasswordHasher(), tokens, activity, cfg.Auth.OnboardingToken)

		in := bootstrapInput
		in.Password = password
		in.SetupToken = cfg.Auth.OnboardingToken

		session, err := onboarding.Bootstrap(ctx, callerFromActor(cliActor()), in)
		if err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}

		fmt.Printf("Created super admin %s (%s)\n", session.User.Email, session.User.ID)
		return nil
	},
}

func callerFromActor(a audit.Actor) service.Caller {
	return service.Caller{IPAddress: a.IPAddress, UserAgent: a.UserAgent, RequestID: a.RequestID}
}

func readPassword() (string, error) {
	if pw := os.Getenv("TENANTKIT_BOOTSTRAP_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
