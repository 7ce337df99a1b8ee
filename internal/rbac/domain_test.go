package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesForClosedSet(t *testing.T) {
	admin := CapabilitiesFor(RoleAdmin)
	for _, c := range allCapabilities {
		_, ok := admin[c]
		assert.True(t, ok, "admin missing %s", c)
	}

	seller := CapabilitiesFor(RoleSeller)
	_, ok := seller[CapSalesConfirm]
	assert.False(t, ok, "seller must not confirm documents")
	_, ok = seller[CapUsersManage]
	assert.False(t, ok)
	_, ok = seller[CapSalesCreate]
	assert.True(t, ok)
}

func TestCapabilitiesForUnknownRole(t *testing.T) {
	caps := CapabilitiesFor(Role("INTERN"))
	assert.Empty(t, caps)
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleAdmin))
	assert.True(t, ValidRole(RoleManager))
	assert.True(t, ValidRole(RoleSeller))
	assert.False(t, ValidRole(Role("ROOT")))
}
