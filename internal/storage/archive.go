package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

const filenameMetadataKey = "Filename"

// Document is an archived upload.
type Document struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Archive stores the original document of each ephemeral table under a key
// derived from the table name.
type Archive struct {
	store ObjectStore
}

func NewArchive(store ObjectStore) *Archive {
	return &Archive{store: store}
}

func (a *Archive) Save(ctx context.Context, tableName, filename string, body []byte) error {
	key, err := BuildUploadPath(tableName)
	if err != nil {
		return err
	}
	err = a.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), PutOptions{
		ContentType: ContentTypeFor(filename),
		Metadata:    map[string]string{filenameMetadataKey: filename},
	})
	if err != nil {
		return fmt.Errorf("archive upload %q: %w", tableName, err)
	}
	return nil
}

// Open returns ErrObjectNotFound when nothing is archived for tableName.
func (a *Archive) Open(ctx context.Context, tableName string) (Document, error) {
	key, err := BuildUploadPath(tableName)
	if err != nil {
		return Document{}, err
	}
	body, info, err := a.store.Open(ctx, key)
	if err != nil {
		return Document{}, err
	}
	filename := metadataValue(info.Metadata, filenameMetadataKey)
	if filename == "" {
		filename = tableName
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(filename)
	}
	return Document{Filename: filename, ContentType: contentType, Size: info.Size, Body: body}, nil
}

func (a *Archive) Remove(ctx context.Context, tableName string) error {
	key, err := BuildUploadPath(tableName)
	if err != nil {
		return err
	}
	return a.store.Delete(ctx, key)
}

// ContentTypeFor guesses the media type of an uploaded document.
func ContentTypeFor(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			return guessed
		}
		return "application/octet-stream"
	}
}

// metadataValue looks key up case-insensitively; S3 gateways differ in how
// they canonicalize user metadata names.
func metadataValue(metadata map[string]string, key string) string {
	for k, v := range metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
