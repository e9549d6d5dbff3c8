package contacts

import "github.com/angelmondragon/procurement-backend/pkg/db/models"

// ContactDTO is the API shape of a delivery contact.
type ContactDTO struct {
	ID        int64  `json:"id"`
	City      string `json:"city"`
	Street    string `json:"street"`
	House     string `json:"house"`
	Structure string `json:"structure"`
	Building  string `json:"building"`
	Apartment string `json:"apartment"`
	Phone     string `json:"phone"`
}

// CreateRequest is the body of POST /user/contact.
type CreateRequest struct {
	City      string `json:"city" validate:"required,notblank,max=50"`
	Street    string `json:"street" validate:"required,notblank,max=100"`
	House     string `json:"house" validate:"omitempty,max=15"`
	Structure string `json:"structure" validate:"omitempty,max=15"`
	Building  string `json:"building" validate:"omitempty,max=15"`
	Apartment string `json:"apartment" validate:"omitempty,max=15"`
	Phone     string `json:"phone" validate:"required,notblank,max=20"`
}

// UpdateRequest is a partial update addressed by id.
type UpdateRequest struct {
	ID        int64   `json:"id" validate:"required,gt=0"`
	City      *string `json:"city,omitempty" validate:"omitempty,max=50"`
	Street    *string `json:"street,omitempty" validate:"omitempty,max=100"`
	House     *string `json:"house,omitempty" validate:"omitempty,max=15"`
	Structure *string `json:"structure,omitempty" validate:"omitempty,max=15"`
	Building  *string `json:"building,omitempty" validate:"omitempty,max=15"`
	Apartment *string `json:"apartment,omitempty" validate:"omitempty,max=15"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=20"`
}

func FromModel(c models.Contact) ContactDTO {
	return ContactDTO{
		ID:        c.ID,
		City:      c.City,
		Street:    c.Street,
		House:     c.House,
		Structure: c.Structure,
		Building:  c.Building,
		Apartment: c.Apartment,
		Phone:     c.Phone,
	}
}
