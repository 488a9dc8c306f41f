/*
Package handler provides HTTP handler functions for managing rooms and their history.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/user"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/randx"
	"roomchat/internal/pkg/req"
	"roomchat/internal/pkg/resp"
)

// pathID reads a uuid path parameter.
func pathID(r *http.Request, key string) (string, *errs.CustomError) {
	id := chi.URLParam(r, key)
	if !randx.IsValidID(id) {
		return "", errs.NewError(errs.ErrInvalidParams)
	}
	return id, nil
}

// actorAndRoom returns the authenticated identity and the {roomID} parameter.
func actorAndRoom(r *http.Request) (*user.Identity, string, *errs.CustomError) {
	identity := jwt.IdentityFromContext(r)
	if identity == nil {
		return nil, "", errs.NewError(errs.ErrUnauthorized)
	}

	roomID, customErr := pathID(r, "roomID")
	if customErr != nil {
		return nil, "", customErr
	}
	return identity, roomID, nil
}

// HandleCreateRoom creates a room owned by the caller.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.IdentityFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input chat.CreateRoomInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		room, customErr := deps.Coordinator.CreateRoom(r.Context(), *identity, input)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondCreated(w, r, map[string]any{"room": room})
	}
}

// HandleListRooms lists active public rooms, most recently active first.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, customErr := req.QueryInt(r, "page", 1, 1, 1_000_000)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		limit, customErr := req.QueryInt(r, "limit", chat.DefaultRoomLimit, 1, chat.MaxRoomLimit)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		rooms, customErr := deps.Coordinator.ListRooms(r.Context(), page, limit)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"rooms": rooms,
			"page":  page,
			"limit": limit,
		})
	}
}

// HandleListMyRooms lists the rooms the caller is a member of.
func HandleListMyRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.IdentityFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		rooms, customErr := deps.Coordinator.ListRoomsForUser(r.Context(), *identity)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"rooms": rooms})
	}
}

func HandleGetRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, roomID, customErr := actorAndRoom(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		room, customErr := deps.Coordinator.GetRoom(r.Context(), *identity, roomID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"room": room})
	}
}

// HandleJoinRoom makes the caller a member of a public room. Joining the
// live event stream of the room is a separate socket command.
func HandleJoinRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, roomID, customErr := actorAndRoom(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		room, customErr := deps.Coordinator.AddMember(r.Context(), *identity, roomID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"room": room})
	}
}

// HandleLeaveRoom drops the caller's membership and evicts its live connections from the room.
func HandleLeaveRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, roomID, customErr := actorAndRoom(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.Coordinator.RemoveMember(r.Context(), *identity, roomID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"roomId": roomID})
	}
}

// HandleDeleteRoom deactivates a room. Only room admins may do this.
func HandleDeleteRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, roomID, customErr := actorAndRoom(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.Coordinator.DeactivateRoom(r.Context(), *identity, roomID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"roomId": roomID})
	}
}

// HandleListMessages returns one page of room history and marks it read for the caller.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, roomID, customErr := actorAndRoom(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		page, customErr := req.QueryInt(r, "page", chat.DefaultMessagePage, 1, 1_000_000)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		limit, customErr := req.QueryInt(r, "limit", chat.DefaultMessageLimit, 1, chat.MaxMessageLimit)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		result, customErr := deps.Coordinator.ListMessages(r.Context(), *identity, roomID, page, limit)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, result)
	}
}
