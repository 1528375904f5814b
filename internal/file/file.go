package file

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const avatarFolder = "leverpad/avatars"

var ErrNotConfigured = errors.New("file uploader is not configured")

type FileUploader struct {
	cloud_name string
	api_key    string
	api_secret string
	logger     *slog.Logger
}

func New(cloud_name, api_key, api_secret string, logger *slog.Logger) *FileUploader {
	return &FileUploader{
		cloud_name: cloud_name,
		api_key:    api_key,
		api_secret: api_secret,
		logger:     logger,
	}
}

func (f *FileUploader) Configured() bool {
	return f.cloud_name != "" && f.api_key != "" && f.api_secret != ""
}

// UploadAvatar stores an avatar under the wallet's address, replacing any
// earlier upload, and returns its public URL.
func (f *FileUploader) UploadAvatar(ctx context.Context, file io.Reader, walletAddress string) (string, error) {
	if !f.Configured() {
		return "", ErrNotConfigured
	}

	cld, err := cloudinary.NewFromParams(f.cloud_name, f.api_key, f.api_secret)
	if err != nil {
		return "", err
	}

	uploadResult, err := cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:   avatarFolder,
		PublicID: walletAddress,
	})
	if err != nil {
		return "", err
	}

	f.logger.Info("avatar uploaded", "wallet", walletAddress, "url", uploadResult.SecureURL)
	return uploadResult.SecureURL, nil
}
