package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// UploadImage uploads raw image bytes for use in messages and returns the
// platform image key.
func (c *Client) UploadImage(ctx context.Context, data []byte) (string, error) {
	fields := map[string]string{"image_type": "message"}
	raw, err := c.upload(ctx, "upload_image", "/open-apis/im/v1/images", fields, "image", "image", data)
	if err != nil {
		return "", err
	}
	var parsed struct {
		ImageKey string `json:"image_key"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("upload_image: decode data: %w", err)
	}
	if strings.TrimSpace(parsed.ImageKey) == "" {
		return "", &APIError{Op: "upload_image", Msg: "empty image_key"}
	}
	return strings.TrimSpace(parsed.ImageKey), nil
}

// UploadFile uploads raw file bytes with a declared file type (pdf, doc,
// xls, ppt, mp4, opus, stream) and filename, returning the file key.
func (c *Client) UploadFile(ctx context.Context, fileName, fileType string, data []byte) (string, error) {
	if strings.TrimSpace(fileName) == "" {
		fileName = "attachment"
	}
	if strings.TrimSpace(fileType) == "" {
		fileType = "stream"
	}
	fields := map[string]string{
		"file_type": fileType,
		"file_name": fileName,
	}
	raw, err := c.upload(ctx, "upload_file", "/open-apis/im/v1/files", fields, "file", fileName, data)
	if err != nil {
		return "", err
	}
	var parsed struct {
		FileKey string `json:"file_key"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("upload_file: decode data: %w", err)
	}
	if strings.TrimSpace(parsed.FileKey) == "" {
		return "", &APIError{Op: "upload_file", Msg: "empty file_key"}
	}
	return strings.TrimSpace(parsed.FileKey), nil
}

// DownloadImage fetches an uploaded image by key, returning the bytes and
// content type.
func (c *Client) DownloadImage(ctx context.Context, imageKey string) ([]byte, string, error) {
	path := "/open-apis/im/v1/images/" + url.PathEscape(imageKey)
	raw, header, err := c.download(ctx, "download_image", path, nil)
	if err != nil {
		return nil, "", err
	}
	return raw, header.Get("Content-Type"), nil
}

// DownloadMessageResource fetches a user-sent image or file attached to a
// message. resourceType is "image" or "file". The filename is parsed from the
// Content-Disposition header and empty when unparseable.
func (c *Client) DownloadMessageResource(ctx context.Context, messageID, key, resourceType string) ([]byte, string, string, error) {
	path := "/open-apis/im/v1/messages/" + url.PathEscape(messageID) + "/resources/" + url.PathEscape(key)
	query := url.Values{"type": {resourceType}}
	raw, header, err := c.download(ctx, "download_resource", path, query)
	if err != nil {
		return nil, "", "", err
	}
	name := ""
	if disposition := header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			name = strings.TrimSpace(params["filename"])
		}
	}
	return raw, header.Get("Content-Type"), name, nil
}

// upload performs a multipart POST with a tenant token and returns the data
// payload of the platform envelope.
func (c *Client) upload(ctx context.Context, op, path string, fields map[string]string, fileField, fileName string, data []byte) (json.RawMessage, error) {
	token, err := c.TenantAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("%s: write field %s: %w", op, key, err)
		}
	}
	part, err := writer.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, fmt.Errorf("%s: create form file: %w", op, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("%s: write payload: %w", op, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%s: close multipart: %w", op, err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Op: op, Timeout: c.callTimeout}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if envelope.Code != 0 {
		return nil, &APIError{Op: op, Code: envelope.Code, Msg: envelope.Msg}
	}
	return envelope.Data, nil
}
