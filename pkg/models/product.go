package models

// DefaultImage is served for products stored without an image.
const DefaultImage = "Assets/default.jpg"

// Product is the stable read shape of a catalog entry, whatever field names
// the stored record used.
type Product struct {
	ID                 int64   `json:"id" bson:"id"`
	Title              string  `json:"title" bson:"title"`
	Description        string  `json:"description" bson:"description"`
	Location           string  `json:"location" bson:"location"`
	Price              float64 `json:"price" bson:"price"`
	AvailableInventory int64   `json:"availableInventory" bson:"availableInventory"`
	Image              string  `json:"image" bson:"image"`
	Rating             float64 `json:"rating" bson:"rating"`
}

// Record returns the product as a record using the primary field names,
// so normalizing it again yields the same product.
func (p Product) Record() Record {
	return Record{
		"id":                 p.ID,
		"title":              p.Title,
		"description":        p.Description,
		"location":           p.Location,
		"price":              p.Price,
		"availableInventory": p.AvailableInventory,
		"image":              p.Image,
		"rating":             p.Rating,
	}
}
