package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

func testSession() *entity.Session {
	return &entity.Session{
		ID:            "S1",
		Currency:      "eur",
		SubtotalCents: 5000,
		ShippingCents: 590,
		DiscountCents: 500,
		Items: []entity.SessionItem{
			{VariantID: "gid://shopify/ProductVariant/4455", Title: "Mug", Quantity: 2, UnitPriceCents: 2500, LineTotalCents: 5000},
		},
		Customer: &entity.Customer{
			FullName:    "Ada Lovelace",
			Email:       "ada@example.com",
			Address1:    "Via Roma 1",
			City:        "Milano",
			PostalCode:  "20100",
			CountryCode: "IT",
		},
	}
}

func TestCreateOrderPostsPaidOrder(t *testing.T) {
	var captured map[string]map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/api/2024-10/orders.json" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Shopify-Access-Token") != "shpat_1" {
			t.Fatalf("unexpected token: %s", r.Header.Get("X-Shopify-Access-Token"))
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &captured); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order":{"id":820982911946154508,"name":"#1001","order_number":1001}}`))
	}))
	defer server.Close()

	client := NewShopifyClient(ShopifyConfig{ShopDomain: server.URL, AdminToken: "shpat_1"})
	result, err := client.CreateOrder(context.Background(), OrderInput{
		Session:          testSession(),
		AmountCents:      5090,
		PaymentReference: "pi_1",
		AccountLabel:     "A",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OrderID != "820982911946154508" || result.OrderNumber != "#1001" {
		t.Fatalf("unexpected result: %+v", result)
	}

	order := captured["order"]
	if order["financial_status"] != "paid" || order["currency"] != "EUR" {
		t.Fatalf("unexpected order body: %v", order)
	}
	txns := order["transactions"].([]interface{})
	if txns[0].(map[string]interface{})["amount"] != "50.90" {
		t.Fatalf("unexpected transaction amount: %v", txns[0])
	}
	line := order["line_items"].([]interface{})[0].(map[string]interface{})
	if line["variant_id"].(float64) != 4455 || line["price"] != "25.00" {
		t.Fatalf("unexpected line item: %v", line)
	}
	if _, ok := order["shipping_address"]; !ok {
		t.Fatal("expected shipping address")
	}
}

func TestCreateOrderWithoutIDFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order":{}}`))
	}))
	defer server.Close()

	client := NewShopifyClient(ShopifyConfig{ShopDomain: server.URL, AdminToken: "t"})
	if _, err := client.CreateOrder(context.Background(), OrderInput{Session: testSession()}); err == nil {
		t.Fatal("expected error for empty order id")
	}
}

func TestCreateOrderHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"line_items":["invalid"]}}`))
	}))
	defer server.Close()

	client := NewShopifyClient(ShopifyConfig{ShopDomain: server.URL, AdminToken: "t"})
	_, err := client.CreateOrder(context.Background(), OrderInput{Session: testSession()})
	if err == nil || !strings.Contains(err.Error(), "status=422") {
		t.Fatalf("expected 422 error, got %v", err)
	}
}

func TestCreateOrderRequiresShop(t *testing.T) {
	client := NewShopifyClient(ShopifyConfig{})
	_, err := client.CreateOrder(context.Background(), OrderInput{Session: testSession()})
	if !errors.Is(err, ErrShopNotConfigured) {
		t.Fatalf("expected ErrShopNotConfigured, got %v", err)
	}
}

func TestCreateOrderUsesPerConfigShop(t *testing.T) {
	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		if r.Header.Get("X-Shopify-Access-Token") != "from-config" {
			t.Fatalf("expected config token, got %s", r.Header.Get("X-Shopify-Access-Token"))
		}
		if !strings.HasPrefix(r.URL.Path, "/admin/api/2025-01/") {
			t.Fatalf("expected config api version, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"order":{"id":1,"order_number":7}}`))
	}))
	defer server.Close()

	client := NewShopifyClient(ShopifyConfig{ShopDomain: "unused.example", AdminToken: "from-env"})
	result, err := client.CreateOrder(context.Background(), OrderInput{
		Shop:    entity.ShopifySettings{ShopDomain: server.URL, AdminToken: "from-config", APIVersion: "2025-01"},
		Session: testSession(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit || result.OrderNumber != "#7" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClearCartRemovesAllLines(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("X-Shopify-Storefront-Access-Token") != "sf_1" {
			t.Fatalf("unexpected storefront token")
		}
		var body struct {
			Query     string                 `json:"query"`
			Variables map[string]interface{} `json:"variables"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch {
		case strings.Contains(body.Query, "cartLinesRemove"):
			ids := body.Variables["lineIds"].([]interface{})
			if len(ids) != 2 {
				t.Fatalf("expected 2 line ids, got %v", ids)
			}
			_, _ = w.Write([]byte(`{"data":{"cartLinesRemove":{"cart":{"id":"c1"},"userErrors":[]}}}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"cart":{"lines":{"edges":[{"node":{"id":"l1"}},{"node":{"id":"l2"}}]}}}}`))
		}
	}))
	defer server.Close()

	client := NewShopifyClient(ShopifyConfig{ShopDomain: server.URL, StorefrontToken: "sf_1"})
	if err := client.ClearCart(context.Background(), entity.ShopifySettings{}, "gid://shopify/Cart/c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestClearCartUserErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if strings.Contains(string(raw), "cartLinesRemove") {
			_, _ = w.Write([]byte(`{"data":{"cartLinesRemove":{"userErrors":[{"field":["lineIds"],"message":"invalid line"}]}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"cart":{"lines":{"edges":[{"node":{"id":"l1"}}]}}}}`))
	}))
	defer server.Close()

	client := NewShopifyClient(ShopifyConfig{ShopDomain: server.URL, StorefrontToken: "sf"})
	err := client.ClearCart(context.Background(), entity.ShopifySettings{}, "c1")
	if err == nil || !strings.Contains(err.Error(), "invalid line") {
		t.Fatalf("expected user error, got %v", err)
	}
}

func TestClearCartEmptyCartIsNoop(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"data":{"cart":null}}`))
	}))
	defer server.Close()

	client := NewShopifyClient(ShopifyConfig{ShopDomain: server.URL, StorefrontToken: "sf"})
	if err := client.ClearCart(context.Background(), entity.ShopifySettings{}, "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected only the cart query, got %d calls", calls)
	}
}

func TestFormatCents(t *testing.T) {
	cases := map[int64]string{0: "0.00", 5: "0.05", 590: "5.90", 5090: "50.90", -125: "-1.25"}
	for in, want := range cases {
		if got := formatCents(in); got != want {
			t.Fatalf("formatCents(%d) = %s, want %s", in, got, want)
		}
	}
}
