package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

// CloudinaryService uploads job/application attachments and profile pictures
// through Cloudinary's unsigned upload endpoint.
type CloudinaryService struct {
	Client       *http.Client
	CloudName    string
	UploadPreset string
	BaseURL      string
}

func NewCloudinaryService() *CloudinaryService {
	baseURL := os.Getenv("CLOUDINARY_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.cloudinary.com/v1_1"
	}

	return &CloudinaryService{
		Client:       &http.Client{Timeout: 30 * time.Second},
		CloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
		UploadPreset: os.Getenv("CLOUDINARY_UPLOAD_PRESET"),
		BaseURL:      baseURL,
	}
}

type UploadResult struct {
	URL      string `json:"secure_url"`
	PublicID string `json:"public_id"`
}

// Upload streams the file content to Cloudinary and returns its public URL
// and asset id.
func (s *CloudinaryService) Upload(filename string, content io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, err
	}
	_ = w.WriteField("upload_preset", s.UploadPreset)
	if err := w.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/auto/upload", s.BaseURL, s.CloudName)
	req, err := http.NewRequest("POST", url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("upload failed (%d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result UploadResult
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %v", err)
	}
	if result.URL == "" {
		return nil, fmt.Errorf("upload response missing url")
	}
	return &result, nil
}
