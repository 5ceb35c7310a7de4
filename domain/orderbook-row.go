package domain

// OrderBookRow is a single price level carried by a snapshot or diff message.
// UpdateID is the id of the message that produced the row. An amount of zero
// means the level has to be removed from the book.
type OrderBookRow struct {
	Price    float64
	Amount   float64
	UpdateID int64
}
