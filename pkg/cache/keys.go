package cache

// RuleSetKey returns the cache key for a tenant's compiled rule set.
func RuleSetKey(tenantID string) string {
	return "rules:" + tenantID
}

// ActivePolicyKey returns the cache key for a tenant's compiled active policy.
func ActivePolicyKey(tenantID string) string {
	return "policy:" + tenantID + ":active"
}

// SessionKey returns the cache key for a call's session state.
func SessionKey(callID string) string {
	return "session:" + callID
}
