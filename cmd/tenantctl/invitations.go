package main

import (
	"fmt"

	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	invitationsCmd.AddCommand(invitationsExpireCmd)
}

var invitationsCmd = &cobra.Command{
	Use:   "invitations",
	Short: "Maintain organization invitations",
}

var invitationsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark pending invitations past their expiry as expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		users := repository.NewUserRepository(db.Gorm)
		gate := service.NewAdminGate(users)
		activity := service.NewActivityLogService(repository.NewActivityLogRepository(db.Gorm), gate, nil)
		invitations := service.NewInvitationService(
			repository.NewInvitationRepository(db.Gorm),
			repository.NewOrganizationRepository(db.Gorm),
			users,
			gate,
			nil,
			nil,
			activity,
			nil,
		)

		n, err := invitations.ExpireStale(ctx, cliActor())
		if err != nil {
			return err
		}
		fmt.Printf("Expired %d invitation(s)\n", n)
		return nil
	},
}
