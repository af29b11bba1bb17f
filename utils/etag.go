package utils

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerateETag builds a weak validator from a document id and its last update.
// Variants distinguish representations of the same document, such as the
// per-actor capabilities attached to an event.
func GenerateETag(id primitive.ObjectID, updatedAt time.Time, variants ...string) string {
	tag := fmt.Sprintf("%s-%x", id.Hex(), updatedAt.UnixNano())
	for _, v := range variants {
		tag += "-" + v
	}
	return `W/"` + tag + `"`
}
