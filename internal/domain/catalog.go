package domain

type Product struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	ListPrice int64  `json:"list_price"`
	SalePrice int64  `json:"sale_price"`
	OnSale    bool   `json:"on_sale"`
}

// CurrentPrice is the minor-unit price a checkout snapshots right now.
func (p Product) CurrentPrice() int64 {
	if p.OnSale {
		return p.SalePrice
	}
	return p.ListPrice
}

type Address struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}
