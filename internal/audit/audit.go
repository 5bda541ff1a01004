package audit

import (
	"context"

	"github.com/rusikfsk/unichat/pkg/log"
)

// Audit actions.
const (
	ActionConnect            = "chat.connect"
	ActionDisconnect         = "chat.disconnect"
	ActionAuthFailed         = "chat.auth_failed"
	ActionJoinConversation   = "chat.join_conversation"
	ActionLeaveConversation  = "chat.leave_conversation"
	ActionSendMessage        = "chat.send_message"
	ActionDeleteMessage      = "chat.delete_message"
	ActionCreateConversation = "chat.create_conversation"
	ActionDeleteConversation = "chat.delete_conversation"
	ActionAddMember          = "chat.add_member"
	ActionUpdateMember       = "chat.update_member"
	ActionRemoveMember       = "chat.remove_member"
	ActionLeaveMembership    = "chat.leave_membership"
	ActionTransferOwnership  = "chat.transfer_ownership"
	ActionUploadAttachment   = "chat.upload_attachment"
	ActionSweepAttachments   = "chat.sweep_attachments"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogConversation emits an audit entry scoped to a conversation.
func LogConversation(ctx context.Context, action, userID, conversationID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldConversationID, conversationID).
		Msg(msg)
}

// LogTarget emits an audit entry about targetID inside a conversation.
func LogTarget(ctx context.Context, action, userID, conversationID, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldConversationID, conversationID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
