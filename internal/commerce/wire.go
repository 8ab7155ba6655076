package commerce

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/Proton-105/himera-shop/internal/domain"
)

// payloads checks decoded resources and outgoing bodies against their
// validate tags.
var payloads = validator.New(validator.WithRequiredStructEnabled())

// validatePayload validates a struct, a pointer to one or a slice of them.
func validatePayload(v any) error {
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Struct:
		return payloads.Struct(rv.Interface())
	case reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			if err := validatePayload(rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	}
	return nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type dataRequest struct {
	Data any `json:"data"`
}

type formattedPrice struct {
	Formatted string `json:"formatted"`
}

type productPayload struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Meta        struct {
		DisplayPrice struct {
			WithTax formattedPrice `json:"with_tax"`
		} `json:"display_price"`
		Stock struct {
			Level int `json:"level" validate:"gte=0"`
		} `json:"stock"`
	} `json:"meta"`
	Relationships struct {
		MainImage struct {
			Data *struct {
				ID string `json:"id"`
			} `json:"data"`
		} `json:"main_image"`
	} `json:"relationships"`
}

func (p productPayload) toDomain() domain.Product {
	product := domain.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Meta.DisplayPrice.WithTax.Formatted,
		Stock:       p.Meta.Stock.Level,
	}
	if p.Relationships.MainImage.Data != nil {
		product.ImageID = p.Relationships.MainImage.Data.ID
	}
	return product
}

type filePayload struct {
	ID   string `json:"id" validate:"required"`
	Link struct {
		Href string `json:"href" validate:"required,url"`
	} `json:"link"`
}

type cartPayload struct {
	ID   string `json:"id" validate:"required"`
	Meta struct {
		DisplayPrice struct {
			WithTax formattedPrice `json:"with_tax"`
		} `json:"display_price"`
	} `json:"meta"`
}

func (c cartPayload) toDomain() domain.Cart {
	return domain.Cart{ID: c.ID, Total: c.Meta.DisplayPrice.WithTax.Formatted}
}

type cartItemPayload struct {
	ID          string `json:"id" validate:"required"`
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
	Meta        struct {
		DisplayPrice struct {
			WithTax struct {
				Unit  formattedPrice `json:"unit"`
				Value formattedPrice `json:"value"`
			} `json:"with_tax"`
		} `json:"display_price"`
	} `json:"meta"`
}

func (i cartItemPayload) toDomain() domain.CartLine {
	return domain.CartLine{
		ID:          i.ID,
		ProductID:   i.ProductID,
		Name:        i.Name,
		Description: i.Description,
		UnitPrice:   i.Meta.DisplayPrice.WithTax.Unit.Formatted,
		Quantity:    i.Quantity,
		Total:       i.Meta.DisplayPrice.WithTax.Value.Formatted,
	}
}

type newCartPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type newCartItemPayload struct {
	ID       string `json:"id" validate:"required"`
	Type     string `json:"type" validate:"eq=cart_item"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type newCustomerPayload struct {
	Type  string `json:"type" validate:"eq=customer"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email"`
}
