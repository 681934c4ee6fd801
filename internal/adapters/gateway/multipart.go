package gateway

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
)

// Multipart is a pre-rendered multipart/form-data body. It is kept in memory
// so a retried attempt can resend it.
type Multipart struct {
	Body        []byte
	ContentType string
}

type MultipartFile struct {
	Field    string
	FileName string
	Content  io.Reader
}

// NewMultipart renders fields and files into one body. Fields are written in
// key order.
func NewMultipart(fields map[string]string, files ...MultipartFile) (*Multipart, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := writer.WriteField(key, fields[key]); err != nil {
			return nil, fmt.Errorf("write multipart field %s: %w", key, err)
		}
	}

	for _, file := range files {
		part, err := writer.CreateFormFile(file.Field, file.FileName)
		if err != nil {
			return nil, fmt.Errorf("create multipart file %s: %w", file.Field, err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, fmt.Errorf("copy multipart file %s: %w", file.Field, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	return &Multipart{Body: buf.Bytes(), ContentType: writer.FormDataContentType()}, nil
}
