package feed

import "github.com/quentinzango/evenement/internal/models"

// Event types delivered on the messages change feed.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event is one change-feed notification. For DELETE the message carries only
// its ID. Seq is assigned by the hub in fan-out order.
type Event struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message"`
	Seq     int64           `json:"seq"`
}
