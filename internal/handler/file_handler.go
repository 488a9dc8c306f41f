package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/store"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
	"roomchat/internal/pkg/req"
	"roomchat/internal/pkg/resp"
)

// PresignUploadInput defines the JSON input structure for generating upload URL.
type PresignUploadInput struct {
	RoomID   string `json:"roomId"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// attachmentRoom loads roomID and checks that the caller may store files in it.
// Downloads only need membership; uploads also need file sharing enabled.
func attachmentRoom(deps *AppDeps, r *http.Request, roomID string, upload bool) (*store.Room, *errs.CustomError) {
	identity := jwt.IdentityFromContext(r)
	if identity == nil {
		return nil, errs.NewError(errs.ErrUnauthorized)
	}

	if deps.Storage == nil {
		return nil, errs.NewError(errs.ErrFileStorageFailed)
	}

	if !randx.IsValidID(roomID) {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	room, customErr := deps.Coordinator.GetRoom(r.Context(), *identity, roomID)
	if customErr != nil {
		return nil, customErr
	}
	if !room.IsMember(identity.ID) {
		return nil, errs.NewError(errs.ErrNotRoomMember)
	}
	if upload && !room.Settings.AllowFileSharing {
		return nil, errs.NewError(errs.ErrFileSharingDisabled)
	}
	return room, nil
}

// newFileKey places a fresh object key under the room's prefix, keeping the extension.
func newFileKey(roomID, fileName string) string {
	return chat.RoomKeyPrefix(roomID) + randx.ID() + strings.ToLower(filepath.Ext(fileName))
}

// HandlePresignUploadURL creates an HTTP HandlerFunc to generate a time-limited,
// pre-signed URL for file upload, scoped to a specific room.
func HandlePresignUploadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PresignUploadInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		room, customErr := attachmentRoom(deps, r, input.RoomID, true)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := chat.ValidateFileSize(input.FileSize); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		if err := chat.ValidateFileType(input.FileName, input.MimeType); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		fileKey := newFileKey(room.ID, input.FileName)

		url, err := deps.Storage.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			chat.PresignedURLDuration,
		)
		if err != nil {
			logx.Error(err, "presign upload failed", "room_id", room.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
		})
	}
}

// HandlePresignDownloadURL redirects to a time-limited, pre-signed download
// URL. The room is taken from the key prefix.
func HandlePresignDownloadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileKey := r.URL.Query().Get("k")
		roomID, _, found := strings.Cut(fileKey, "/")
		if !found || strings.Contains(fileKey, "..") {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if _, customErr := attachmentRoom(deps, r, roomID, false); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		url, err := deps.Storage.PresignDownload(r.Context(), fileKey, chat.PresignedURLDuration)
		if err != nil {
			logx.Error(err, "presign download failed", "room_id", roomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}

// HandleUploadFile streams a small multipart upload ("roomId", "file") to
// storage and returns the attachment to reference in a message.
func HandleUploadFile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if customErr := req.SetupMultipart(w, r); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		room, customErr := attachmentRoom(deps, r, r.FormValue("roomId"), true)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFormParseFailed))
			return
		}
		defer file.Close()

		mimeType := header.Header.Get("Content-Type")
		if customErr := chat.ValidateFileSize(header.Size); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if customErr := chat.ValidateFileType(header.Filename, mimeType); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		attachment := store.Attachment{
			FileKey:  newFileKey(room.ID, header.Filename),
			FileName: header.Filename,
			MimeType: strings.ToLower(mimeType),
			FileSize: header.Size,
		}

		if err := deps.Storage.Upload(r.Context(), attachment.FileKey, file, attachment.MimeType); err != nil {
			logx.Error(err, "file upload failed", "room_id", room.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondCreated(w, r, map[string]any{"attachment": attachment})
	}
}
