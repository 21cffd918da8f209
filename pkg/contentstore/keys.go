package contentstore

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Key layout:
//
//	objects bucket:   {objectId}/object            root manifest
//	                  {objectId}/{elementId}       element blobs
//	templates bucket: {templateId}/template
//	sessions bucket:  {sessionId}                  session descriptor
//	files bucket:     {sessionId}/{code}/{uuid}    staged multipart uploads
//	                  {etag}{.ext}                 finalized, content-addressed files
const (
	objectManifestMarker = "object"
	templateMarker       = "template"
)

// Metadata keys stored with blobs.
const (
	metaAuthor           = "author"
	metaAuthorLogin      = "author-login"
	metaAuthorName       = "author-name"
	metaModifiedElements = "modified-elements"
	metaTemplateID       = "template-id"
	metaTemplateVersion  = "template-version-id"
	metaFilename         = "filename"
	metaSessionID        = "session-id"
	metaExpiresAt        = "expires-at"
)

func objectManifestKey(id int64) string {
	return fmt.Sprintf("%d/%s", id, objectManifestMarker)
}

func objectElementKey(objectID, elementID int64) string {
	return fmt.Sprintf("%d/%d", objectID, elementID)
}

// parseObjectManifestKey returns the object id of a manifest key.
func parseObjectManifestKey(key string) (int64, bool) {
	return parseMarkedKey(key, objectManifestMarker)
}

// templateKey ends in a marker so a version lookup of template 1 does not
// list the history of templates 10, 11 and 100.
func templateKey(id int64) string {
	return fmt.Sprintf("%d/%s", id, templateMarker)
}

func parseTemplateKey(key string) (int64, bool) {
	return parseMarkedKey(key, templateMarker)
}

func parseMarkedKey(key, want string) (int64, bool) {
	idPart, marker, found := strings.Cut(key, "/")
	if !found || marker != want {
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func sessionKey(sessionID uuid.UUID) string {
	return sessionID.String()
}

func stagedFileKey(sessionID uuid.UUID, templateCode int32) string {
	return fmt.Sprintf("%s/%d/%s", sessionID, templateCode, uuid.New())
}

// contentAddressedKey derives the final key of an upload from its ETag and
// the original file extension, so identical uploads share a key.
func contentAddressedKey(etag, filename string) string {
	etag = strings.Trim(etag, "\"")
	return etag + strings.ToLower(path.Ext(filename))
}

func objectLockKey(id int64) string {
	return fmt.Sprintf("object:%d", id)
}

func templateLockKey(id int64) string {
	return fmt.Sprintf("template:%d", id)
}

func authorMetadata(author AuthorInfo) map[string]string {
	return map[string]string{
		metaAuthor:      author.Author,
		metaAuthorLogin: author.AuthorLogin,
		metaAuthorName:  author.AuthorName,
	}
}

func authorFromMetadata(metadata map[string]string) AuthorInfo {
	return AuthorInfo{
		Author:      metadata[metaAuthor],
		AuthorLogin: metadata[metaAuthorLogin],
		AuthorName:  metadata[metaAuthorName],
	}
}

func formatTemplateCodes(codes []int32) string {
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, strconv.FormatInt(int64(c), 10))
	}
	return strings.Join(parts, ",")
}

func parseTemplateCodes(s string) []int32 {
	codes := []int32{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := strconv.ParseInt(part, 10, 32)
		if err != nil {
			continue
		}
		codes = append(codes, int32(c))
	}
	return codes
}
