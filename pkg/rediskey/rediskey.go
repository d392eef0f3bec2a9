package rediskey

import "fmt"

// Webhook keys (global convention across services)
const (
	EndpointPrefix = "webhook:endpoints"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildEndpointMatchKey returns "webhook:endpoints:{tenantID}:{eventType}",
// the cached set of ACTIVE endpoints subscribed to one event type.
func BuildEndpointMatchKey(tenantID, eventType string) string {
	return NamespaceKey(EndpointPrefix, fmt.Sprintf("%s:%s", tenantID, eventType))
}

// BuildEndpointInvalidatePattern returns the glob covering every cached match
// set for a tenant, used when its endpoints mutate.
func BuildEndpointInvalidatePattern(tenantID string) string {
	return NamespaceKey(EndpointPrefix, fmt.Sprintf("%s:*", tenantID))
}
