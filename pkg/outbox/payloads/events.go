package payloads

import (
	"time"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// UserRegisteredEvent carries the confirmation key mailed after sign-up.
type UserRegisteredEvent struct {
	UserID       int64  `json:"user_id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name,omitempty"`
	ConfirmToken string `json:"confirm_token"`
}

// PasswordResetEvent carries the reset key mailed on request.
type PasswordResetEvent struct {
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	ResetToken string `json:"reset_token"`
}

// NewOrderEvent fires once when a basket is placed.
type NewOrderEvent struct {
	OrderID   int64   `json:"order_id"`
	UserID    int64   `json:"user_id"`
	Email     string  `json:"email"`
	ContactID int64   `json:"contact_id"`
	Total     int64   `json:"total"`
	ShopIDs   []int64 `json:"shop_ids,omitempty"`
}

// OrderStateChangedEvent fires on every staff-driven transition.
type OrderStateChangedEvent struct {
	OrderID   int64            `json:"order_id"`
	UserID    int64            `json:"user_id"`
	Email     string           `json:"email"`
	From      enums.OrderState `json:"from"`
	To        enums.OrderState `json:"to"`
	ChangedAt time.Time        `json:"changed_at"`
}

// ImportCompletedEvent reports a committed feed import.
type ImportCompletedEvent struct {
	TaskID            string `json:"task_id"`
	UserID            int64  `json:"user_id"`
	Email             string `json:"email"`
	ShopID            int64  `json:"shop_id"`
	ShopName          string `json:"shop_name"`
	CategoriesCreated int    `json:"categories_created"`
	ProductsCreated   int    `json:"products_created"`
	ListingsCreated   int    `json:"listings_created"`
	ParametersCreated int    `json:"parameters_created"`
	ItemsSkipped      int    `json:"items_skipped"`
	OrphansPruned     int    `json:"orphans_pruned"`
}

// ImportFailedEvent reports an import that gave up.
type ImportFailedEvent struct {
	TaskID   string `json:"task_id"`
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
	URL      string `json:"url"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}
