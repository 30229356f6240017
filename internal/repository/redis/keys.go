package redisrepo

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "bookit:v1"

func KeyActivity(id uuid.UUID) string {
	return fmt.Sprintf("%s:activity:%s", ns, id)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdempotency(scope, key string) string {
	return fmt.Sprintf("%s:idem:%s:%s", ns, scope, key)
}

func ChannelActivitiesChanged() string {
	return ns + ":activities:changed"
}
