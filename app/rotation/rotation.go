package rotation

import (
	"errors"
	"sort"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

const (
	DefaultWindow     = 6 * time.Hour
	DefaultTouchAfter = time.Hour
)

var ErrNoActiveAccount = errors.New("no active payment account configured")

type Selection struct {
	Account      entity.Account
	Index        int
	Total        int
	WindowIndex  int64
	NextRotation time.Time
}

// EligibleAccounts returns the selectable accounts ordered by Order; ties keep their stored order.
func EligibleAccounts(accounts []entity.Account) []entity.Account {
	eligible := make([]entity.Account, 0, len(accounts))
	for _, account := range accounts {
		if account.Eligible() {
			eligible = append(eligible, account)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Order < eligible[j].Order
	})
	return entity.CloneAccounts(eligible)
}

// WebhookAccounts returns the accounts whose webhook secret may be tried, in pool order.
func WebhookAccounts(accounts []entity.Account) []entity.Account {
	eligible := EligibleAccounts(accounts)
	out := eligible[:0]
	for _, account := range eligible {
		if account.WebhookEligible() {
			out = append(out, account)
		}
	}
	return out
}

func WindowIndex(now time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = DefaultWindow
	}
	return now.UnixMilli() / window.Milliseconds()
}

func SelectIndex(now time.Time, window time.Duration, n int) int {
	if n <= 0 {
		return -1
	}
	idx := WindowIndex(now, window) % int64(n)
	if idx < 0 {
		idx += int64(n)
	}
	return int(idx)
}

func NextRotation(now time.Time, window time.Duration) time.Time {
	if window <= 0 {
		window = DefaultWindow
	}
	next := (WindowIndex(now, window) + 1) * window.Milliseconds()
	return time.UnixMilli(next).UTC()
}

// Select picks the account serving the window that contains now.
func Select(accounts []entity.Account, now time.Time, window time.Duration) (*Selection, error) {
	eligible := EligibleAccounts(accounts)
	if len(eligible) == 0 {
		return nil, ErrNoActiveAccount
	}

	idx := SelectIndex(now, window, len(eligible))
	return &Selection{
		Account:      eligible[idx],
		Index:        idx,
		Total:        len(eligible),
		WindowIndex:  WindowIndex(now, window),
		NextRotation: NextRotation(now, window),
	}, nil
}
