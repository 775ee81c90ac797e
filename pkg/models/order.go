package models

import (
	"time"
)

// DraftOrder is the in-progress order held by a form session.
type DraftOrder struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Governorate   string `json:"governorate"`
	Area          string `json:"area"`
	FullAddress   string `json:"full_address"`
	BraceletStyle string `json:"bracelet_style"`
}

// OrderRecord is the payload written to the orders collection.
// Identity, timestamp and status are assigned by the store.
type OrderRecord struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Governorate   string `json:"governorate"`
	Area          string `json:"area"`
	FullAddress   string `json:"full_address"`
	BraceletStyle string `json:"bracelet_style"`
	BraceletImage string `json:"bracelet_image"`
}

// Order is a stored record as read back from the orders table.
type Order struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	OrderRecord
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewOrderRecord pairs a draft with the image of the chosen variant.
func NewOrderRecord(draft DraftOrder, image string) OrderRecord {
	return OrderRecord{
		Name:          draft.Name,
		Phone:         draft.Phone,
		Governorate:   draft.Governorate,
		Area:          draft.Area,
		FullAddress:   draft.FullAddress,
		BraceletStyle: draft.BraceletStyle,
		BraceletImage: image,
	}
}
