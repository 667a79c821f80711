package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

const globalConfigID = "global"

type accountRecord struct {
	Label          string   `json:"label"`
	SecretKey      string   `json:"secretKey"`
	PublishableKey string   `json:"publishableKey"`
	WebhookSecret  string   `json:"webhookSecret"`
	Active         bool     `json:"active"`
	Order          int      `json:"order"`
	LastUsedAt     int64    `json:"lastUsedAt"`
	MerchantSite   string   `json:"merchantSite,omitempty"`
	ProductTitles  []string `json:"productTitles,omitempty"`
}

type shopifyRecord struct {
	ShopDomain      string `json:"shopDomain"`
	AdminToken      string `json:"adminToken"`
	StorefrontToken string `json:"storefrontToken"`
	APIVersion      string `json:"apiVersion"`
}

type ConfigRepository struct {
	db  DBTX
	now func() time.Time
}

func NewConfigRepository(db DBTX) *ConfigRepository {
	return &ConfigRepository{db: db, now: time.Now}
}

func (r *ConfigRepository) Load(ctx context.Context) (*entity.CheckoutConfig, error) {
	query := `
		SELECT accounts_json, default_currency, checkout_domain, shopify_json, updated_at
		FROM checkout_config
		WHERE id = ?
	`

	var accountsJSON sql.NullString
	var defaultCurrency sql.NullString
	var checkoutDomain sql.NullString
	var shopifyJSON sql.NullString
	var updatedAt int64

	err := r.db.QueryRowContext(ctx, query, globalConfigID).Scan(
		&accountsJSON,
		&defaultCurrency,
		&checkoutDomain,
		&shopifyJSON,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var accounts []accountRecord
	if err := unmarshalJSON(accountsJSON, &accounts); err != nil {
		return nil, err
	}
	var shopify shopifyRecord
	if err := unmarshalJSON(shopifyJSON, &shopify); err != nil {
		return nil, err
	}

	cfg := &entity.CheckoutConfig{
		Accounts:        accountsFromRecords(accounts),
		DefaultCurrency: defaultCurrency.String,
		CheckoutDomain:  checkoutDomain.String,
		Shopify: entity.ShopifySettings{
			ShopDomain:      shopify.ShopDomain,
			AdminToken:      shopify.AdminToken,
			StorefrontToken: shopify.StorefrontToken,
			APIVersion:      shopify.APIVersion,
		},
		UpdatedAt: updatedAt,
	}
	return cfg, nil
}

// Save merges the patch into the global row; columns the patch leaves nil are retained.
func (r *ConfigRepository) Save(ctx context.Context, patch *entity.ConfigPatch) error {
	if patch == nil {
		return nil
	}

	patched, patchArgs, err := configColumns(patch)
	if err != nil {
		return err
	}
	columns := append(append([]string{"id"}, patched...), "updated_at")
	args := append(append([]interface{}{globalConfigID}, patchArgs...), r.now().UnixMilli())

	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns)-1)
	for i, column := range columns {
		placeholders[i] = "?"
		switch column {
		case "id":
		case "updated_at":
			// updated_at only moves forward; CompareAndSave matches on it.
			updates = append(updates, "updated_at = GREATEST(VALUES(updated_at), updated_at + 1)")
		default:
			updates = append(updates, column+" = VALUES("+column+")")
		}
	}

	query := "INSERT INTO checkout_config (" + strings.Join(columns, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// CompareAndSave applies the patch only while the row still carries loadedUpdatedAt.
// It reports false when another write landed in between.
func (r *ConfigRepository) CompareAndSave(ctx context.Context, patch *entity.ConfigPatch, loadedUpdatedAt int64) (bool, error) {
	if patch == nil {
		return false, nil
	}

	columns, args, err := configColumns(patch)
	if err != nil {
		return false, err
	}
	if len(columns) == 0 {
		return false, nil
	}

	next := r.now().UnixMilli()
	if next <= loadedUpdatedAt {
		next = loadedUpdatedAt + 1
	}

	assignments := make([]string, 0, len(columns)+1)
	for _, column := range columns {
		assignments = append(assignments, column+" = ?")
	}
	assignments = append(assignments, "updated_at = ?")
	args = append(args, next, globalConfigID, loadedUpdatedAt)

	query := "UPDATE checkout_config SET " + strings.Join(assignments, ", ") + " WHERE id = ? AND updated_at = ?"
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func configColumns(patch *entity.ConfigPatch) ([]string, []interface{}, error) {
	var columns []string
	var args []interface{}

	if patch.Accounts != nil {
		payload, err := marshalJSON(accountsToRecords(patch.Accounts))
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, "accounts_json")
		args = append(args, payload)
	}
	if patch.DefaultCurrency != nil {
		columns = append(columns, "default_currency")
		args = append(args, *patch.DefaultCurrency)
	}
	if patch.CheckoutDomain != nil {
		columns = append(columns, "checkout_domain")
		args = append(args, *patch.CheckoutDomain)
	}
	if patch.Shopify != nil {
		payload, err := marshalJSON(shopifyRecord{
			ShopDomain:      patch.Shopify.ShopDomain,
			AdminToken:      patch.Shopify.AdminToken,
			StorefrontToken: patch.Shopify.StorefrontToken,
			APIVersion:      patch.Shopify.APIVersion,
		})
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, "shopify_json")
		args = append(args, payload)
	}
	return columns, args, nil
}

func accountsFromRecords(records []accountRecord) []entity.Account {
	accounts := make([]entity.Account, 0, len(records))
	for _, rec := range records {
		accounts = append(accounts, entity.Account{
			Label:          rec.Label,
			SecretKey:      rec.SecretKey,
			PublishableKey: rec.PublishableKey,
			WebhookSecret:  rec.WebhookSecret,
			Active:         rec.Active,
			Order:          rec.Order,
			LastUsedAt:     rec.LastUsedAt,
			MerchantSite:   rec.MerchantSite,
			ProductTitles:  append([]string(nil), rec.ProductTitles...),
		})
	}
	return accounts
}

func accountsToRecords(accounts []entity.Account) []accountRecord {
	records := make([]accountRecord, 0, len(accounts))
	for _, a := range accounts {
		records = append(records, accountRecord{
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
	return records
}
