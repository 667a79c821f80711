package firestore

import (
	"context"
	"errors"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errConfigChanged = errors.New("config changed since load")

type accountDoc struct {
	Label          string   `firestore:"label"`
	SecretKey      string   `firestore:"secretKey"`
	PublishableKey string   `firestore:"publishableKey"`
	WebhookSecret  string   `firestore:"webhookSecret"`
	Active         bool     `firestore:"active"`
	Order          int      `firestore:"order"`
	LastUsedAt     int64    `firestore:"lastUsedAt"`
	MerchantSite   string   `firestore:"merchantSite"`
	ProductTitles  []string `firestore:"productTitles"`
}

type shopifyDoc struct {
	ShopDomain      string `firestore:"shopDomain"`
	AdminToken      string `firestore:"adminToken"`
	StorefrontToken string `firestore:"storefrontToken"`
	APIVersion      string `firestore:"apiVersion"`
}

type configDoc struct {
	Accounts        []accountDoc `firestore:"stripeAccounts"`
	DefaultCurrency string       `firestore:"defaultCurrency"`
	CheckoutDomain  string       `firestore:"checkoutDomain"`
	Shopify         shopifyDoc   `firestore:"shopify"`
	UpdatedAt       int64        `firestore:"updatedAt"`
}

type ConfigStore struct {
	client *gcfirestore.Client
	now    func() time.Time
}

func NewConfigStore(client *gcfirestore.Client) *ConfigStore {
	return &ConfigStore{client: client, now: time.Now}
}

func (s *ConfigStore) Load(ctx context.Context) (*entity.CheckoutConfig, error) {
	snap, err := s.client.Collection(configCollection).Doc(configDocID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc configDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return configFromDoc(doc), nil
}

// Save merges the patch into config/global.
func (s *ConfigStore) Save(ctx context.Context, patch *entity.ConfigPatch) error {
	if patch == nil {
		return nil
	}
	_, err := s.client.Collection(configCollection).Doc(configDocID).Set(ctx, configPatchFields(patch, s.now()), gcfirestore.MergeAll)
	return err
}

// CompareAndSave applies the patch inside a transaction only while updatedAt still equals loadedUpdatedAt.
func (s *ConfigStore) CompareAndSave(ctx context.Context, patch *entity.ConfigPatch, loadedUpdatedAt int64) (bool, error) {
	if patch == nil {
		return false, nil
	}

	ref := s.client.Collection(configCollection).Doc(configDocID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *gcfirestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return errConfigChanged
		}
		if err != nil {
			return err
		}

		var doc configDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.UpdatedAt != loadedUpdatedAt {
			return errConfigChanged
		}

		next := s.now()
		if next.UnixMilli() <= loadedUpdatedAt {
			next = time.UnixMilli(loadedUpdatedAt + 1)
		}
		return tx.Set(ref, configPatchFields(patch, next), gcfirestore.MergeAll)
	})
	if errors.Is(err, errConfigChanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func configPatchFields(patch *entity.ConfigPatch, now time.Time) map[string]interface{} {
	fields := map[string]interface{}{
		"updatedAt": now.UnixMilli(),
	}
	if patch.Accounts != nil {
		accounts := make([]accountDoc, 0, len(patch.Accounts))
		for _, a := range patch.Accounts {
			accounts = append(accounts, accountDoc{
				Label:          a.Label,
				SecretKey:      a.SecretKey,
				PublishableKey: a.PublishableKey,
				WebhookSecret:  a.WebhookSecret,
				Active:         a.Active,
				Order:          a.Order,
				LastUsedAt:     a.LastUsedAt,
				MerchantSite:   a.MerchantSite,
				ProductTitles:  a.ProductTitles,
			})
		}
		fields["stripeAccounts"] = accounts
	}
	if patch.DefaultCurrency != nil {
		fields["defaultCurrency"] = *patch.DefaultCurrency
	}
	if patch.CheckoutDomain != nil {
		fields["checkoutDomain"] = *patch.CheckoutDomain
	}
	if patch.Shopify != nil {
		fields["shopify"] = shopifyDoc{
			ShopDomain:      patch.Shopify.ShopDomain,
			AdminToken:      patch.Shopify.AdminToken,
			StorefrontToken: patch.Shopify.StorefrontToken,
			APIVersion:      patch.Shopify.APIVersion,
		}
	}
	return fields
}

func configFromDoc(doc configDoc) *entity.CheckoutConfig {
	accounts := make([]entity.Account, 0, len(doc.Accounts))
	for _, a := range doc.Accounts {
		accounts = append(accounts, entity.Account{
			Label:          a.Label,
			SecretKey:      a.SecretKey,
			PublishableKey: a.PublishableKey,
			WebhookSecret:  a.WebhookSecret,
			Active:         a.Active,
			Order:          a.Order,
			LastUsedAt:     a.LastUsedAt,
			MerchantSite:   a.MerchantSite,
			ProductTitles:  append([]string(nil), a.ProductTitles...),
		})
	}

	return &entity.CheckoutConfig{
		Accounts:        accounts,
		DefaultCurrency: doc.DefaultCurrency,
		CheckoutDomain:  doc.CheckoutDomain,
		Shopify: entity.ShopifySettings{
			ShopDomain:      doc.Shopify.ShopDomain,
			AdminToken:      doc.Shopify.AdminToken,
			StorefrontToken: doc.Shopify.StorefrontToken,
			APIVersion:      doc.Shopify.APIVersion,
		},
		UpdatedAt: doc.UpdatedAt,
	}
}
