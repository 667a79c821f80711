package firestore

import (
	"context"
	"fmt"
	"os"
	"strings"

	gcfirestore "cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

const (
	configCollection      = "config"
	configDocID           = "global"
	sessionCollection     = "cartSessions"
	transactionCollection = "transactions"
)

type ClientConfig struct {
	ProjectID       string
	CredentialsFile string
	EmulatorHost    string
}

func NewClient(ctx context.Context, cfg ClientConfig) (*gcfirestore.Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id not configured")
	}

	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		if err := os.Setenv("FIRESTORE_EMULATOR_HOST", host); err != nil {
			return nil, fmt.Errorf("failed to set FIRESTORE_EMULATOR_HOST: %w", err)
		}
	}

	var opts []option.ClientOption
	if credentials := strings.TrimSpace(cfg.CredentialsFile); credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}

	return gcfirestore.NewClient(ctx, projectID, opts...)
}
