package contacts

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/idlist"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9\- ()]{7,20}$`)

// Service manages the caller's delivery contacts.
type Service interface {
	List(ctx context.Context, userID int64) ([]ContactDTO, error)
	Create(ctx context.Context, userID int64, req CreateRequest) (*ContactDTO, error)
	Update(ctx context.Context, userID int64, req UpdateRequest) error
	Delete(ctx context.Context, userID int64, rawIDs string) (int64, error)
}

type contactStore interface {
	ListByUser(ctx context.Context, userID int64) ([]models.Contact, error)
	Create(ctx context.Context, contact *models.Contact) error
	Update(ctx context.Context, userID, id int64, fields map[string]any) (int64, error)
	DeleteIDs(ctx context.Context, userID int64, ids []int64) (int64, error)
}

type service struct {
	repo contactStore
}

func NewService(repo contactStore) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("contact repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, userID int64) ([]ContactDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list contacts")
	}
	out := make([]ContactDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, userID int64, req CreateRequest) (*ContactDTO, error) {
	phone := strings.TrimSpace(req.Phone)
	if !phonePattern.MatchString(phone) {
		return nil, invalidPhone()
	}
	contact := &models.Contact{
		UserID:    userID,
		City:      strings.TrimSpace(req.City),
		Street:    strings.TrimSpace(req.Street),
		House:     strings.TrimSpace(req.House),
		Structure: strings.TrimSpace(req.Structure),
		Building:  strings.TrimSpace(req.Building),
		Apartment: strings.TrimSpace(req.Apartment),
		Phone:     phone,
	}
	if err := s.repo.Create(ctx, contact); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create contact")
	}
	dto := FromModel(*contact)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, userID int64, req UpdateRequest) error {
	if req.ID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "id is required")
	}
	fields := map[string]any{}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if !phonePattern.MatchString(phone) {
			return invalidPhone()
		}
		fields["phone"] = phone
	}
	for column, value := range map[string]*string{
		"city":      req.City,
		"street":    req.Street,
		"house":     req.House,
		"structure": req.Structure,
		"building":  req.Building,
		"apartment": req.Apartment,
	} {
		if value != nil {
			fields[column] = strings.TrimSpace(*value)
		}
	}
	if len(fields) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	affected, err := s.repo.Update(ctx, userID, req.ID, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update contact")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "contact not found")
	}
	return nil
}

func (s *service) Delete(ctx context.Context, userID int64, rawIDs string) (int64, error) {
	ids := idlist.Parse(rawIDs)
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}
	deleted, err := s.repo.DeleteIDs(ctx, userID, ids)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete contacts")
	}
	return deleted, nil
}

func invalidPhone() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid phone").
		WithDetails(map[string]string{"phone": "must match " + phonePattern.String()})
}
