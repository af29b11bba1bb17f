package utils

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Upload folders.
const (
	FolderApprovals        = "event-approvals"
	FolderCommitteeMinutes = "committee-minutes"
	FolderCertificates     = "organization-certificates"
	FolderEndorsements     = "teacher-endorsements"
)

// ErrUploadsDisabled is returned when no file storage is configured.
var ErrUploadsDisabled = errors.New("file uploads are not configured")

// Uploader stores documents and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, folder string) (string, error)
	Delete(ctx context.Context, fileURL string) error
}

// CloudinaryUploader stores documents on Cloudinary.
type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryUploader(cloudName, apiKey, apiSecret string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config error: %w", err)
	}
	return &CloudinaryUploader{cld: cld}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, folder string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := u.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:       folder,
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", header.Filename, err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("upload %s: %s", header.Filename, resp.Error.Message)
	}
	return resp.SecureURL, nil
}

// Delete removes a previously uploaded document identified by its URL.
func (u *CloudinaryUploader) Delete(ctx context.Context, fileURL string) error {
	publicID, err := ExtractPublicID(fileURL)
	if err != nil {
		return fmt.Errorf("could not extract public ID: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := u.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

// DisabledUploader rejects every upload.
type DisabledUploader struct{}

func (DisabledUploader) Upload(context.Context, multipart.File, *multipart.FileHeader, string) (string, error) {
	return "", ErrUploadsDisabled
}

func (DisabledUploader) Delete(context.Context, string) error {
	return nil
}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// ExtractPublicID returns the Cloudinary public ID of a delivery URL, e.g.
// https://res.cloudinary.com/demo/image/upload/v1234567890/events/abc123.pdf
// yields "events/abc123".
func ExtractPublicID(fileURL string) (string, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")

	idx := -1
	for i, p := range parts {
		if p == "upload" {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(parts)-1 {
		return "", errors.New("invalid cloudinary URL format")
	}
	rest := parts[idx+1:]
	if len(rest) > 1 && versionSegment.MatchString(rest[0]) {
		rest = rest[1:]
	}
	joined := path.Join(rest...)
	return strings.TrimSuffix(joined, path.Ext(joined)), nil
}
