package catalog

import "sort"

// Currency of every catalog price.
const Currency = "ARS"

// MaxTitleLength bounds product titles copied into orders and provider line items.
const MaxTitleLength = 120

// Product is a server-owned catalog entry. Prices are whole pesos.
type Product struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Price int64  `json:"price"`
}

// Catalog is the fixed product list used to price carts. Client-supplied
// titles and prices are never trusted.
type Catalog struct {
	products map[int64]Product
}

// New builds a catalog from products. Later duplicates replace earlier ones.
func New(products []Product) *Catalog {
	c := &Catalog{products: make(map[int64]Product, len(products))}
	for _, p := range products {
		if r := []rune(p.Title); len(r) > MaxTitleLength {
			p.Title = string(r[:MaxTitleLength])
		}
		c.products[p.ID] = p
	}
	return c
}

// Default returns the storefront catalog.
func Default() *Catalog {
	return New([]Product{
		{ID: 1, Title: "Sillón Nórdico 3 cuerpos", Price: 185000},
		{ID: 2, Title: "Mesa de comedor Roble 180 cm", Price: 240000},
		{ID: 3, Title: "Silla Eames tapizada", Price: 42000},
		{ID: 4, Title: "Rack TV Escandinavo 160 cm", Price: 98000},
		{ID: 5, Title: "Cama Sommier Queen con respaldo", Price: 310000},
		{ID: 6, Title: "Mesa ratona Paraíso", Price: 67000},
		{ID: 7, Title: "Placard 3 puertas Melamina", Price: 276000},
		{ID: 8, Title: "Escritorio Industrial 120 cm", Price: 115000},
	})
}

// Get looks a product up by id.
func (c *Catalog) Get(id int64) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// List returns all products ordered by id.
func (c *Catalog) List() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
