package permissions

import api "github.com/OvyFlash/telegram-bot-api"

// CanModerate reports whether the member may issue moderation commands and is exempt from checks.
func CanModerate(member *api.ChatMember) bool {
	switch {
	case member == nil:
		return false
	case member.IsCreator():
		return true
	case member.IsAdministrator():
		return member.CanRestrictMembers || member.CanDeleteMessages || member.CanManageChat
	default:
		return false
	}
}

// CanEnforce reports whether the bot account holds the rights verdicts need.
func CanEnforce(member *api.ChatMember) bool {
	if member == nil || !member.IsAdministrator() {
		return false
	}
	return member.CanRestrictMembers && member.CanDeleteMessages
}
