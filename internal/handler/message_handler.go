package handler

import (
	"net/http"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/store"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/req"
	"roomchat/internal/pkg/resp"
)

// The handlers below run the same coordinator operations as the socket
// commands, so live subscribers of the room see the same events.

type SendMessageInput struct {
	Content     string             `json:"content"`
	MessageType store.MessageType  `json:"messageType"`
	ReplyTo     *string            `json:"replyTo,omitempty"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
	Mentions    []store.Mention    `json:"mentions,omitempty"`
}

func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, roomID, customErr := actorAndRoom(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input SendMessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		view, customErr := deps.Coordinator.Send(r.Context(), *identity, chat.SendMessage{
			RoomID:      roomID,
			Content:     input.Content,
			MessageType: input.MessageType,
			ReplyTo:     input.ReplyTo,
			Attachments: input.Attachments,
			Mentions:    input.Mentions,
		})
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondCreated(w, r, map[string]any{"message": view})
	}
}

type EditMessageInput struct {
	Content string `json:"content"`
}

func HandleEditMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.IdentityFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		messageID, customErr := pathID(r, "messageID")
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input EditMessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, customErr := deps.Coordinator.Edit(r.Context(), *identity, chat.EditMessage{
			MessageID: messageID,
			Content:   input.Content,
		})
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"message": msg})
	}
}

func HandleDeleteMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.IdentityFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		messageID, customErr := pathID(r, "messageID")
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.Coordinator.Delete(r.Context(), *identity, chat.DeleteMessage{MessageID: messageID}); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messageId": messageID})
	}
}

type ReactionInput struct {
	Emoji string `json:"emoji"`
}

// HandleReaction adds (add=true) or removes the caller's emoji on a message.
func HandleReaction(deps *AppDeps, add bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.IdentityFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		messageID, customErr := pathID(r, "messageID")
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input ReactionInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var summary map[string]store.ReactionGroup
		if add {
			summary, customErr = deps.Coordinator.React(r.Context(), *identity, chat.AddReaction{MessageID: messageID, Emoji: input.Emoji})
		} else {
			summary, customErr = deps.Coordinator.Unreact(r.Context(), *identity, chat.RemoveReaction{MessageID: messageID, Emoji: input.Emoji})
		}
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messageId": messageID,
			"reactions": summary,
		})
	}
}
