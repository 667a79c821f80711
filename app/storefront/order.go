package storefront

import (
	"strconv"
	"strings"
)

func buildOrder(input OrderInput) map[string]interface{} {
	session := input.Session
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = strings.ToUpper(session.Currency)
	}

	lineItems := make([]map[string]interface{}, 0, len(session.Items))
	for _, item := range session.Items {
		line := map[string]interface{}{
			"title":    item.Title,
			"quantity": item.Quantity,
			"price":    formatCents(item.UnitPriceCents),
		}
		if variantID, ok := numericID(item.VariantID); ok {
			line["variant_id"] = variantID
		}
		lineItems = append(lineItems, line)
	}

	order := map[string]interface{}{
		"line_items":       lineItems,
		"financial_status": "paid",
		"currency":         currency,
		"tags":             "custom-checkout",
		"note":             "Payment account: " + input.AccountLabel,
		"transactions": []map[string]interface{}{{
			"kind":          "sale",
			"status":        "success",
			"amount":        formatCents(input.AmountCents),
			"gateway":       "stripe",
			"authorization": input.PaymentReference,
		}},
		"note_attributes": []map[string]string{
			{"name": "session_id", "value": session.ID},
			{"name": "payment_intent_id", "value": input.PaymentReference},
			{"name": "stripe_account", "value": input.AccountLabel},
		},
	}

	if session.ShippingCents > 0 {
		order["shipping_lines"] = []map[string]interface{}{{
			"title": "Shipping",
			"price": formatCents(session.ShippingCents),
		}}
	}
	if session.DiscountCents > 0 {
		order["total_discounts"] = formatCents(session.DiscountCents)
	}

	if c := session.Customer; c != nil {
		first, last := splitName(c.FullName)
		if c.Email != "" {
			order["email"] = c.Email
			order["customer"] = map[string]interface{}{
				"first_name": first,
				"last_name":  last,
				"email":      c.Email,
			}
		}
		if c.Phone != "" {
			order["phone"] = c.Phone
		}
		if c.Address1 != "" {
			order["shipping_address"] = map[string]interface{}{
				"first_name":   first,
				"last_name":    last,
				"address1":     c.Address1,
				"address2":     c.Address2,
				"city":         c.City,
				"zip":          c.PostalCode,
				"province":     c.Province,
				"country_code": c.CountryCode,
				"phone":        c.Phone,
			}
		}
	}

	return order
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + leftPad2(cents%100)
}

func leftPad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

// numericID accepts plain ids and gid://shopify/ProductVariant/<id>.
func numericID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		raw = raw[idx+1:]
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
