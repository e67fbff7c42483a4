package redisx

import "time"

const (
	// Idempotent create: idem:order:create:{actor_id}:{idempotency_key} -> order_id, or "pending"
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Order read cache: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Side-effect dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
