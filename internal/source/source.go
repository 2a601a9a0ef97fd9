package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mahirjain10/convertkit/internal/apperrors"
	"github.com/mahirjain10/convertkit/internal/utils"
)

const s3Scheme = "s3://"

// Descriptor is one selected file. Content is a data URI.
type Descriptor struct {
	Name    string
	Content string
	Type    string
	Size    int
}

// FromBytes sniffs the mime type of raw and wraps it in a data URI.
func FromBytes(name string, raw []byte) Descriptor {
	mime := mimetype.Detect(raw).String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return Descriptor{
		Name:    name,
		Content: utils.EncodeDataURI(mime, raw),
		Type:    mime,
		Size:    len(raw),
	}
}

// FromDataURI describes an encoder result.
func FromDataURI(name, content, mimeType string) Descriptor {
	if mimeType == "" {
		mimeType = utils.MimeTypeOf(content)
	}
	return Descriptor{
		Name:    name,
		Content: content,
		Type:    mimeType,
		Size:    utils.Base64Size(content),
	}
}

// ObjectDownloader fetches an object from a bucket; an empty bucket means the default one.
type ObjectDownloader interface {
	DownloadObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Loader turns a user reference (local path or s3://bucket/key) into a Descriptor.
type Loader struct {
	objects ObjectDownloader
}

func NewLoader(objects ObjectDownloader) *Loader {
	return &Loader{objects: objects}
}

func (l *Loader) Load(ctx context.Context, ref string) (Descriptor, error) {
	if strings.HasPrefix(ref, s3Scheme) {
		bucket, key, err := ParseS3Ref(ref)
		if err != nil {
			return Descriptor{}, err
		}
		if l.objects == nil {
			return Descriptor{}, apperrors.New(apperrors.KindStorage, "source.Load", "s3 source is not configured")
		}
		raw, err := l.objects.DownloadObject(ctx, bucket, key)
		if err != nil {
			return Descriptor{}, err
		}
		return FromBytes(filepath.Base(key), raw), nil
	}

	raw, err := utils.ReadImageBuffer(ref)
	if err != nil {
		return Descriptor{}, apperrors.Wrap(apperrors.KindStorage, "source.Load", "failed to read "+ref, err)
	}
	return FromBytes(filepath.Base(ref), raw), nil
}

// ParseS3Ref splits "s3://bucket/key". "s3:///key" uses the default bucket.
func ParseS3Ref(ref string) (string, string, error) {
	rest := strings.TrimPrefix(ref, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return "", "", apperrors.New(apperrors.KindStorage, "source.ParseS3Ref",
			fmt.Sprintf("expected s3://bucket/key, got %q", ref))
	}
	return bucket, key, nil
}
