// Package domain holds the typed shop entities exchanged between the commerce
// backend, the conversation engine and the presentation layer.
package domain

// Product is a catalog entry. Price is already formatted by the backend.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	ImageID     string `json:"image_id"`
}

// Image is a resolved catalog file.
type Image struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Cart is a backend cart header. Total is the backend-formatted total with tax.
type Cart struct {
	ID    string
	Total string
}

// CartLine is a single cart item with display-ready values from the backend.
type CartLine struct {
	ID          string
	ProductID   string
	Name        string
	Description string
	UnitPrice   string
	Quantity    int
	Total       string
}
