package state

import "lendcore/crypto"

// RoleMarketAdmin is the blanket role covering every market admin action.
// Finer control is possible by granting the action name itself as a role.
const RoleMarketAdmin = "market.admin"

// RoleAuthority adapts the role registry to the market engine's access
// controller seam.
type RoleAuthority struct {
	manager *Manager
}

// NewRoleAuthority wraps the state manager for authority checks.
func NewRoleAuthority(manager *Manager) *RoleAuthority {
	return &RoleAuthority{manager: manager}
}

// IsAllowed reports whether the address may perform the action. An address
// passes when it holds either the action-specific role or the blanket admin
// role.
func (a *RoleAuthority) IsAllowed(addr crypto.Address, action string) bool {
	if a == nil || a.manager == nil || addr.IsZero() {
		return false
	}
	raw := addr.Bytes()
	if a.manager.HasRole(action, raw) {
		return true
	}
	return a.manager.HasRole(RoleMarketAdmin, raw)
}
