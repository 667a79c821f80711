package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-checkout/app/mapper"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect the payment account pool",
}

var accountsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the account serving the current rotation window",
	Run:   runAccountsStatus,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsStatusCmd)
}

func runAccountsStatus(_ *cobra.Command, _ []string) {
	_, checkoutService, cleanup := mustCreateCheckoutService()
	defer cleanup()

	status, err := checkoutService.RotationStatus(context.Background())
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAccount) {
			logrus.Warn("No eligible payment account configured")
			return
		}
		logrus.WithError(err).Fatal("Failed to read rotation status")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(mapper.RotationStatusToResponse(status, checkoutService.RotationWindow())); err != nil {
		logrus.WithError(err).Fatal("Failed to print rotation status")
	}
}
