package orders

import "time"

// LineItem is a snapshot of a menu item taken when the order was placed.
// Later menu edits never touch it.
type LineItem struct {
	MenuItemID    int64  `json:"menuItemId"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	PurchasePrice *int64 `json:"purchasePrice,omitempty"`
	Category      string `json:"category"`
	Details       string `json:"details,omitempty"`
	Quantity      int64  `json:"quantity"`
}

type Order struct {
	ID             int64      `json:"id"`
	Timestamp      time.Time  `json:"timestamp"`
	Status         Status     `json:"status"`
	Name           string     `json:"name,omitempty"`
	RoomNumber     string     `json:"roomNumber"`
	MobileNumber   string     `json:"mobileNumber"`
	Items          []LineItem `json:"items"`
	Total          int64      `json:"total"`
	Settled        bool       `json:"settled"`
	RestaurantPaid bool       `json:"restaurantPaid"`
}

// Draft is what a guest submits. Identity, status and flags are assigned by the store.
type Draft struct {
	Name         string     `json:"name,omitempty"`
	RoomNumber   string     `json:"roomNumber"`
	MobileNumber string     `json:"mobileNumber"`
	Items        []LineItem `json:"items"`
}

// Total is the sum of price*quantity over the draft items.
func (d Draft) Total() int64 {
	var total int64
	for _, it := range d.Items {
		total += it.Price * it.Quantity
	}
	return total
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Status         *Status `json:"status,omitempty"`
	Settled        *bool   `json:"settled,omitempty"`
	RestaurantPaid *bool   `json:"restaurantPaid,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Settled == nil && p.RestaurantPaid == nil
}

// Apply copies the provided fields onto o.
func (p Patch) Apply(o *Order) {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.Settled != nil {
		o.Settled = *p.Settled
	}
	if p.RestaurantPaid != nil {
		o.RestaurantPaid = *p.RestaurantPaid
	}
}

func (o Order) clone() Order {
	out := o
	if o.Items != nil {
		out.Items = make([]LineItem, len(o.Items))
		copy(out.Items, o.Items)
		for i, it := range out.Items {
			if it.PurchasePrice != nil {
				v := *it.PurchasePrice
				out.Items[i].PurchasePrice = &v
			}
		}
	}
	return out
}
