package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

const defaultAPIVersion = "2024-10"

var ErrShopNotConfigured = errors.New("shopify shop is not configured")

type ShopifyConfig struct {
	ShopDomain      string
	AdminToken      string
	StorefrontToken string
	APIVersion      string
	Timeout         time.Duration
}

type OrderInput struct {
	Shop             entity.ShopifySettings
	Session          *entity.Session
	AmountCents      int64
	Currency         string
	PaymentReference string
	AccountLabel     string
}

type OrderResult struct {
	OrderID     string
	OrderNumber string
}

// ShopifyClient materializes paid sessions as Admin API orders and clears Storefront carts.
type ShopifyClient struct {
	cfg    ShopifyConfig
	client *http.Client
}

func NewShopifyClient(cfg ShopifyConfig) *ShopifyClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ShopifyClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *ShopifyClient) CreateOrder(ctx context.Context, input OrderInput) (*OrderResult, error) {
	shop := c.resolve(input.Shop)
	if shop.ShopDomain == "" || shop.AdminToken == "" {
		return nil, ErrShopNotConfigured
	}
	if input.Session == nil {
		return nil, fmt.Errorf("shopify create order: session is required")
	}

	body, err := json.Marshal(map[string]interface{}{"order": buildOrder(input)})
	if err != nil {
		return nil, err
	}

	endpoint := shopBaseURL(shop.ShopDomain) + "/admin/api/" + shop.APIVersion + "/orders.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", shop.AdminToken)
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify create order: %w", err)
	}

	var payload struct {
		Order struct {
			ID          int64  `json:"id"`
			Name        string `json:"name"`
			OrderNumber int64  `json:"order_number"`
		} `json:"order"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, err
	}
	if payload.Order.ID == 0 {
		return nil, fmt.Errorf("shopify create order: response carries no order id")
	}

	number := payload.Order.Name
	if number == "" && payload.Order.OrderNumber > 0 {
		number = "#" + strconv.FormatInt(payload.Order.OrderNumber, 10)
	}

	return &OrderResult{
		OrderID:     strconv.FormatInt(payload.Order.ID, 10),
		OrderNumber: number,
	}, nil
}

// ClearCart removes every line of the Storefront cart.
func (c *ShopifyClient) ClearCart(ctx context.Context, shop entity.ShopifySettings, cartID string) error {
	shop = c.resolve(shop)
	if shop.ShopDomain == "" || shop.StorefrontToken == "" {
		return ErrShopNotConfigured
	}
	if strings.TrimSpace(cartID) == "" {
		return nil
	}

	const cartQuery = `query cartLines($cartId: ID!) {
  cart(id: $cartId) {
    lines(first: 100) { edges { node { id } } }
  }
}`
	var cartData struct {
		Cart *struct {
			Lines struct {
				Edges []struct {
					Node struct {
						ID string `json:"id"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"lines"`
		} `json:"cart"`
	}
	if err := c.storefrontGraphQL(ctx, shop, cartQuery, map[string]interface{}{"cartId": cartID}, &cartData); err != nil {
		return err
	}
	if cartData.Cart == nil || len(cartData.Cart.Lines.Edges) == 0 {
		return nil
	}

	lineIDs := make([]string, 0, len(cartData.Cart.Lines.Edges))
	for _, edge := range cartData.Cart.Lines.Edges {
		lineIDs = append(lineIDs, edge.Node.ID)
	}

	const removeMutation = `mutation cartLinesRemove($cartId: ID!, $lineIds: [ID!]!) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) {
    cart { id }
    userErrors { field message }
  }
}`
	var removeData struct {
		CartLinesRemove struct {
			UserErrors []struct {
				Message string `json:"message"`
			} `json:"userErrors"`
		} `json:"cartLinesRemove"`
	}
	if err := c.storefrontGraphQL(ctx, shop, removeMutation, map[string]interface{}{"cartId": cartID, "lineIds": lineIDs}, &removeData); err != nil {
		return err
	}
	if errs := removeData.CartLinesRemove.UserErrors; len(errs) > 0 {
		return fmt.Errorf("shopify cart lines remove: %s", errs[0].Message)
	}
	return nil
}

func (c *ShopifyClient) storefrontGraphQL(ctx context.Context, shop entity.ShopifySettings, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"query": query, "variables": variables})
	if err != nil {
		return err
	}

	endpoint := shopBaseURL(shop.ShopDomain) + "/api/" + shop.APIVersion + "/graphql.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Storefront-Access-Token", shop.StorefrontToken)
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return fmt.Errorf("shopify storefront: %w", err)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("shopify storefront: %s", envelope.Errors[0].Message)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *ShopifyClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed: path=%s status=%d body=%s", req.URL.Path, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *ShopifyClient) resolve(shop entity.ShopifySettings) entity.ShopifySettings {
	if strings.TrimSpace(shop.ShopDomain) == "" {
		shop.ShopDomain = c.cfg.ShopDomain
	}
	if strings.TrimSpace(shop.AdminToken) == "" {
		shop.AdminToken = c.cfg.AdminToken
	}
	if strings.TrimSpace(shop.StorefrontToken) == "" {
		shop.StorefrontToken = c.cfg.StorefrontToken
	}
	if strings.TrimSpace(shop.APIVersion) == "" {
		shop.APIVersion = c.cfg.APIVersion
	}
	if strings.TrimSpace(shop.APIVersion) == "" {
		shop.APIVersion = defaultAPIVersion
	}
	shop.ShopDomain = strings.TrimSpace(shop.ShopDomain)
	return shop
}

func shopBaseURL(domain string) string {
	domain = strings.TrimRight(domain, "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}
