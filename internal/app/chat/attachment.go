package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"roomchat/internal/app/storage"
	"roomchat/internal/app/store"
	"roomchat/internal/pkg/errs"
)

const (
	// MaxAttachmentSizeMB is the maximum allowed file size in megabytes.
	MaxAttachmentSizeMB = 5

	// MaxAttachmentSize is the maximum allowed file size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024

	// MaxAttachmentsCount defines the maximum number of attachments allowed per message.
	MaxAttachmentsCount = 3

	// PresignedURLDuration is the fixed duration for which upload and download URLs are valid.
	PresignedURLDuration = 5 * time.Minute
)

// ExtToMIME maps the permitted file extensions to their MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".zip":  "application/zip",
}

// ValidateFileSize checks if the provided file size is within acceptable limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxAttachmentSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// ValidateFileType checks that the extension of fileName is permitted and matches mimeType.
func ValidateFileType(fileName string, mimeType string) *errs.CustomError {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	expectedMIME, ok := ExtToMIME[ext]
	if !ok || expectedMIME != strings.ToLower(mimeType) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}

// RoomKeyPrefix is the object-storage prefix every attachment of roomID lives under.
func RoomKeyPrefix(roomID string) string {
	return roomID + "/"
}

// ValidateAttachments checks the attachment list of a message sent to roomID.
func ValidateAttachments(roomID string, attachments []store.Attachment) *errs.CustomError {
	if len(attachments) > MaxAttachmentsCount {
		return errs.NewError(errs.ErrAttachmentCountInvalid, MaxAttachmentsCount)
	}

	prefix := RoomKeyPrefix(roomID)
	for _, a := range attachments {
		if !strings.HasPrefix(a.FileKey, prefix) || strings.Contains(a.FileKey, "..") {
			return errs.NewError(errs.ErrAttachmentKeyInvalid)
		}

		if customErr := ValidateFileType(a.FileName, a.MimeType); customErr != nil {
			return customErr
		}

		if customErr := ValidateFileSize(a.FileSize); customErr != nil {
			return customErr
		}
	}

	return nil
}

// MessageTypeFor derives the message type of an attachment message whose client left it unset.
func MessageTypeFor(requested store.MessageType, attachments []store.Attachment) store.MessageType {
	if requested != "" {
		return requested
	}
	if len(attachments) == 0 {
		return store.MessageText
	}
	for _, a := range attachments {
		if !strings.HasPrefix(a.MimeType, "image/") {
			return store.MessageFile
		}
	}
	return store.MessageImage
}

// ObjectStat reports the stored metadata of an uploaded attachment.
type ObjectStat interface {
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
}

// checkUploads rejects attachments whose object is missing or whose declared
// size differs from the stored one.
func (c *Coordinator) checkUploads(ctx context.Context, attachments []store.Attachment) *errs.CustomError {
	if c.objects == nil {
		return nil
	}

	for _, a := range attachments {
		info, err := c.objects.Stat(ctx, a.FileKey)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return errs.NewError(errs.ErrAttachmentKeyInvalid)
		}
		if err != nil {
			c.logger.Error().Err(err).Str("key", a.FileKey).Msg("Failed to stat attachment")
			return errs.NewError(errs.ErrFileStorageFailed)
		}
		if info.Size != a.FileSize {
			return errs.NewError(errs.ErrAttachmentKeyInvalid)
		}
	}
	return nil
}
