package grantfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omni/permission-relay/sdkerrors"
)

// Uploader stores a blob and returns its url.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

type UploaderFunc func(ctx context.Context, data []byte, filename string) (string, error)

func (f UploaderFunc) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	return f(ctx, data, filename)
}

// IPFSUploader adds blobs through the IPFS HTTP RPC API and returns ipfs:// urls.
type IPFSUploader struct {
	apiURL string
	client *http.Client
}

func NewIPFSUploader(apiURL string, timeout time.Duration) *IPFSUploader {
	return &IPFSUploader{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (u *IPFSUploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	body := new(bytes.Buffer)
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("can't create multipart form: %w", err)
	}
	if _, err = part.Write(data); err != nil {
		return "", fmt.Errorf("can't write multipart form: %w", err)
	}
	if err = form.Close(); err != nil {
		return "", fmt.Errorf("can't close multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.apiURL+"/api/v0/add?pin=true&cid-version=1", body)
	if err != nil {
		return "", fmt.Errorf("can't create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", &sdkerrors.NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &sdkerrors.NetworkError{Cause: err}
	}
	if resp.StatusCode >= 300 {
		return "", &sdkerrors.NetworkError{Cause: fmt.Errorf("ipfs add failed with status %d: %s", resp.StatusCode, raw)}
	}

	var added struct {
		Hash string `json:"Hash"`
	}
	if err = json.Unmarshal(raw, &added); err != nil || added.Hash == "" {
		return "", &sdkerrors.SerializationError{Message: "can't decode ipfs add response", Cause: err}
	}
	return "ipfs://" + added.Hash, nil
}
