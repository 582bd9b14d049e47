package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"comix-sync/internal/config"
	"comix-sync/internal/logger"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const imageKitUploadURL = "https://upload.imagekit.io/api/v1/files/upload"

// ImageKitStore downloads a source image and re-uploads it through the
// ImageKit upload API, keeping the deterministic page naming scheme.
type ImageKitStore struct {
	log    zerolog.Logger
	cfg    *config.AppConfig
	client *http.Client
}

func NewImageKitStore(log logger.Logger, cfg *config.AppConfig) *ImageKitStore {
	return &ImageKitStore{
		log: log.With().Str("module", "storage").Logger(),
		cfg: cfg,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (s *ImageKitStore) Enabled() bool { return true }

// Upload fetches the image and pushes it to ImageKit. On any failure the
// source URL is returned with the error so callers can fall back to
// serving the ephemeral URL.
func (s *ImageKitStore) Upload(ctx context.Context, sourceURL, fileName, folderPath string) (string, error) {
	buf, err := s.download(ctx, sourceURL)
	if err != nil {
		return sourceURL, errors.Wrap(err, "could not download source image")
	}

	durable, err := s.upload(ctx, buf, fileName, folderPath)
	if err != nil {
		return sourceURL, errors.Wrap(err, "could not upload to imagekit")
	}

	return durable, nil
}

func (s *ImageKitStore) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.Config.UserAgent)
	req.Header.Set("Referer", s.cfg.Config.SiteURL+"/")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d fetching image", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (s *ImageKitStore) upload(ctx context.Context, data []byte, fileName, folderPath string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}

	fields := map[string]string{
		"fileName": fileName,
		"folder":   folderPath,
		// keep our page naming scheme instead of generated names
		"useUniqueFileName": "false",
		"tags":              "manga-chapter",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, imageKitUploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(s.cfg.Config.ImageKitPrivateKey, "")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Errorf("upload rejected with status %d: %s", resp.StatusCode, string(raw))
	}

	var uploaded struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", err
	}
	if uploaded.URL == "" {
		return "", errors.New("upload response missing url")
	}

	return uploaded.URL, nil
}
