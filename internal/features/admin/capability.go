package admin

import "serotonyl.ru/flip-bot/internal/ledger"

// Capability — действие в админке.
type Capability string

const (
	CapManageCatalog  Capability = "manage_catalog"
	CapManageUsers    Capability = "manage_users"
	CapSetBalance     Capability = "set_balance"
	CapViewStats      Capability = "view_stats"
	CapSeed           Capability = "seed"
	CapManagePayments Capability = "manage_payments"
)

// Allowed сообщает, может ли роль выполнить действие.
// Каталог заданий и наград правят admin и tester, остальное — только admin.
func Allowed(role ledger.Role, c Capability) bool {
	switch role {
	case ledger.RoleAdmin:
		return true
	case ledger.RoleTester:
		return c == CapManageCatalog
	}
	return false
}
