package provider

import (
	"strings"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

const (
	descriptorBaseMax   = 18
	descriptorSuffixMax = 22
)

// RandomSource is satisfied by *math/rand.Rand.
type RandomSource interface {
	Intn(n int) int
}

// StatementDescriptorSuffix keeps [A-Za-z0-9 ] of the label, caps it at 18 characters, appends
// " ORDER" and caps the result at the card network limit of 22 characters.
func StatementDescriptorSuffix(label, fallback string) string {
	base := sanitizeDescriptor(label)
	if strings.TrimSpace(base) == "" {
		base = sanitizeDescriptor(fallback)
	}
	if len(base) > descriptorBaseMax {
		base = base[:descriptorBaseMax]
	}
	out := base + " ORDER"
	if len(out) > descriptorSuffixMax {
		out = out[:descriptorSuffixMax]
	}
	return strings.TrimSpace(out)
}

func sanitizeDescriptor(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PickDecoyTitle returns one of the account's non-blank product titles chosen uniformly by rnd,
// or fallback when the account has none.
func PickDecoyTitle(account entity.Account, rnd RandomSource, fallback string) string {
	titles := make([]string, 0, len(account.ProductTitles))
	for _, title := range account.ProductTitles {
		if t := strings.TrimSpace(title); t != "" {
			titles = append(titles, t)
		}
		if len(titles) == entity.MaxProductTitles {
			break
		}
	}
	if len(titles) == 0 || rnd == nil {
		if len(titles) > 0 {
			return titles[0]
		}
		return fallback
	}
	return titles[rnd.Intn(len(titles))]
}
