package catalog

import "github.com/angelmondragon/procurement-backend/pkg/db/models"

// ListingFilter narrows ActiveListings; nil fields are ignored and set
// fields combine with AND.
type ListingFilter struct {
	ShopID     *int64
	CategoryID *int64
}

type CategoryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ShopDTO struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	URL   *string `json:"url,omitempty"`
	State bool    `json:"state"`
}

type ProductDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type ParameterValueDTO struct {
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
}

// ListingDTO is one shop's offer of a product as returned by GET /products.
type ListingDTO struct {
	ID                int64               `json:"id"`
	ExternalID        int64               `json:"external_id"`
	Model             string              `json:"model"`
	Product           ProductDTO          `json:"product"`
	Shop              ShopDTO             `json:"shop"`
	Quantity          int                 `json:"quantity"`
	Price             int64               `json:"price"`
	PriceRRC          int64               `json:"price_rrc"`
	ProductParameters []ParameterValueDTO `json:"product_parameters"`
}

// ListingInput is one feed good to be written as a listing.
type ListingInput struct {
	ExternalID int64
	CategoryID int64
	Name       string
	Model      string
	Price      int64
	PriceRRC   int64
	Quantity   int
	Parameters map[string]string
}

// ReplaceResult counts what a listing replacement wrote.
type ReplaceResult struct {
	ProductsCreated   int
	ListingsCreated   int
	ParametersCreated int
	ItemsSkipped      int
	ListingsDeleted   int64
	OrphansPruned     int64
	ItemErrors        error
}

func CategoryFromModel(c models.Category) CategoryDTO {
	return CategoryDTO{ID: c.ID, Name: c.Name}
}

func ShopFromModel(s models.Shop) ShopDTO {
	return ShopDTO{ID: s.ID, Name: s.Name, URL: s.URL, State: s.State}
}

func ListingFromModel(p models.ProductInfo) ListingDTO {
	dto := ListingDTO{
		ID:                p.ID,
		ExternalID:        p.ExternalID,
		Model:             p.Model,
		Quantity:          p.Quantity,
		Price:             p.Price,
		PriceRRC:          p.PriceRRC,
		ProductParameters: make([]ParameterValueDTO, 0, len(p.ProductParameters)),
	}
	if p.Product != nil {
		dto.Product = ProductDTO{ID: p.Product.ID, Name: p.Product.Name}
		if p.Product.Category != nil {
			dto.Product.Category = p.Product.Category.Name
		}
	}
	if p.Shop != nil {
		dto.Shop = ShopFromModel(*p.Shop)
	}
	for _, pp := range p.ProductParameters {
		name := ""
		if pp.Parameter != nil {
			name = pp.Parameter.Name
		}
		dto.ProductParameters = append(dto.ProductParameters, ParameterValueDTO{Parameter: name, Value: pp.Value})
	}
	return dto
}
