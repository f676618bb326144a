// Package perm evaluates {scope, actor, action} authorization against a
// role→permission table kept as pure data.
package perm

import "github.com/vanchien08/thunderchat/internal/models"

type Action string

const (
	SendMessage Action = "SEND_MESSAGE"
	PinMessage  Action = "PIN_MESSAGE"
	InviteUser  Action = "INVITE_USER"
	UpdateInfo  Action = "UPDATE_INFO"
)

var rolePermissions = map[models.GroupRole]map[Action]bool{
	models.RoleAdmin: {
		SendMessage: true,
		PinMessage:  true,
		InviteUser:  true,
		UpdateInfo:  true,
	},
	models.RoleMember: {
		SendMessage: true,
	},
}

// Allows reports whether role grants action.
func Allows(role models.GroupRole, action Action) bool {
	return rolePermissions[role][action]
}
