package orders

const (
	TopicShopChanges = "shop.changes"
)

// Partition key = shop_id, so every change of one shop keeps its order.
func PartitionKey(shopID string) []byte { return []byte(shopID) }
