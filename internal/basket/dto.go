package basket

// AddItem is one requested basket line.
type AddItem struct {
	ProductInfo int64 `json:"product_info"`
	Quantity    int   `json:"quantity"`
}

// QuantityUpdate changes the quantity of an existing line. Fields are raw
// so entries that are not integers can be skipped instead of rejected.
type QuantityUpdate struct {
	ID       any `json:"id"`
	Quantity any `json:"quantity"`
}

type AddResult struct {
	Created int `json:"created"`
}

type UpdateResult struct {
	Updated int `json:"updated"`
}

type RemoveResult struct {
	Deleted int64 `json:"deleted"`
}
