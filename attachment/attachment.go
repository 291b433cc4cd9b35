// Package attachment saves uploaded drop/PB/CA/clog/pet images to a
// content-addressed location and returns a public URL. The default backend
// is local disk; an optional S3/R2-compatible backend is available for
// deployments that want object storage instead.
package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"droptracker-ingest/normalize"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Kinds accepted in the store path's <kind> segment.
const (
	KindDrop = "drop"
	KindPB   = "pb"
	KindCA   = "ca"
	KindClog = "clog"
	KindPet  = "pet"
)

var illegalChars = regexp.MustCompile(`[<>:"/\\|?*]`)
var whitespace = regexp.MustCompile(`\s+`)

// Sanitize makes a submitted name filesystem-safe: strip the
// illegal characters, collapse whitespace to underscores, and trim leading
// or trailing dots/spaces. Non-ASCII display names are transliterated first
// so the resulting path stays readable.
func Sanitize(name string) string {
	name = normalize.TransliterateForPath(name)
	name = illegalChars.ReplaceAllString(name, "")
	name = strings.Trim(name, ". ")
	return whitespace.ReplaceAllString(name, "_")
}

// ExtensionFor normalizes a declared content type to one of the four
// accepted extensions, defaulting to jpg.
func ExtensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/jpeg", "image/jpg":
		return "jpg"
	default:
		return "jpg"
	}
}

// Sink is the local-disk content-addressed attachment store.
type Sink struct {
	root      string
	publicBase string
	s3        *S3Backend
}

// New constructs a disk-backed Sink rooted at root, serving public URLs
// under publicBase. If s3 is non-nil, Save writes through it instead.
func New(root, publicBase string, s3 *S3Backend) *Sink {
	return &Sink{root: root, publicBase: publicBase, s3: s3}
}

// Save writes data under the store layout
//
//	<store-root>/<external_player_id>/<kind>/<subfolder?>/<sanitized_name>[_<n>].<ext>
//
// subfolder is the NPC/boss name when applicable, empty otherwise. Returns
// the public URL, or an error on any write failure; the processors then log
// the error and persist the owning row with the client-declared URL.
func (s *Sink) Save(ctx context.Context, externalPlayerID uint, kind, subfolder, baseName, contentType string, data []byte) (string, error) {
	ext := ExtensionFor(contentType)
	cleanBase := Sanitize(baseName)
	if cleanBase == "" {
		cleanBase = "image"
	}
	cleanSub := ""
	if subfolder != "" {
		cleanSub = Sanitize(subfolder)
	}

	if s.s3 != nil {
		key := s.s3Key(externalPlayerID, kind, cleanSub, cleanBase, ext)
		return s.s3.put(ctx, key, contentType, data)
	}
	return s.saveToDisk(externalPlayerID, kind, cleanSub, cleanBase, ext, data)
}

func (s *Sink) s3Key(externalPlayerID uint, kind, subfolder, base, ext string) string {
	parts := []string{fmt.Sprintf("%d", externalPlayerID), kind}
	if subfolder != "" {
		parts = append(parts, subfolder)
	}
	parts = append(parts, fmt.Sprintf("%s.%s", base, ext))
	return strings.Join(parts, "/")
}

func (s *Sink) saveToDisk(externalPlayerID uint, kind, subfolder, base, ext string, data []byte) (string, error) {
	dir := filepath.Join(s.root, fmt.Sprintf("%d", externalPlayerID), kind)
	if subfolder != "" {
		dir = filepath.Join(dir, subfolder)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("attachment: mkdir: %w", err)
	}

	name := fmt.Sprintf("%s.%s", base, ext)
	path := filepath.Join(dir, name)
	for n := 1; fileExists(path); n++ {
		name = fmt.Sprintf("%s_%d.%s", base, n, ext)
		path = filepath.Join(dir, name)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("attachment: write: %w", err)
	}

	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = path
	}
	return strings.TrimRight(s.publicBase, "/") + "/" + filepath.ToSlash(rel), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// S3Backend is the optional object-storage path: static credentials and an
// account-scoped endpoint resolver, accepting a raw byte payload and key.
type S3Backend struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

// NewS3Backend builds the R2-compatible backend. accountID selects the R2
// account-scoped endpoint; cdnBaseURL overrides the returned public URL
// prefix when set (e.g. a custom domain fronting the bucket).
func NewS3Backend(ctx context.Context, accountID, accessKeyID, accessKeySecret, bucket, cdnBaseURL string) (*S3Backend, error) {
	if cdnBaseURL == "" {
		cdnBaseURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("attachment: load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID))
	})

	return &S3Backend{client: client, bucket: bucket, cdnBaseURL: cdnBaseURL}, nil
}

func (b *S3Backend) put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("attachment: s3 put: %w", err)
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(b.cdnBaseURL, "/"), key), nil
}

// ReadMultipart drains a *multipart.FileHeader into memory so both the disk
// and S3 paths share one read step.
func ReadMultipart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("attachment: open upload: %w", err)
	}
	defer f.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, f); err != nil {
		return nil, fmt.Errorf("attachment: read upload: %w", err)
	}
	return buf.Bytes(), nil
}
