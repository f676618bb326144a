package perm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vanchien08/thunderchat/internal/models"
)

func TestRolePermissions(t *testing.T) {
	cases := []struct {
		role   models.GroupRole
		action Action
		want   bool
	}{
		{models.RoleAdmin, SendMessage, true},
		{models.RoleAdmin, PinMessage, true},
		{models.RoleAdmin, InviteUser, true},
		{models.RoleAdmin, UpdateInfo, true},
		{models.RoleMember, SendMessage, true},
		{models.RoleMember, PinMessage, false},
		{models.RoleMember, InviteUser, false},
		{models.RoleMember, UpdateInfo, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Allows(c.role, c.action), "%s %s", c.role, c.action)
	}
}

func TestUnknownRoleDeniesEverything(t *testing.T) {
	assert.False(t, Allows(models.GroupRole("GHOST"), SendMessage))
}
