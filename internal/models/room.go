package models

// Room represents a chat room. Rooms are reference data: the broker only
// accepts messages for rooms that already exist in the store.
type Room struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}
