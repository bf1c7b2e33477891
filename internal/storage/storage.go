package storage

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"time"
)

var ErrBucketRequired = errors.New("storage bucket is required")

// ObjectInfo is one stored object. Upload is the torrent folder a move
// action wrote it under, relative to the listed prefix.
type ObjectInfo struct {
	Key          string
	Upload       string
	Size         int64
	LastModified *time.Time
}

// UploadOptions conveys upload destination metadata.
type UploadOptions struct {
	Bucket           string
	KeyPrefix        string
	ProgressCallback func(done, total int64)
}

// UploadSummary totals the objects of one uploaded torrent.
type UploadSummary struct {
	Name         string
	Objects      int
	Size         int64
	LastModified *time.Time
}

// Service copies torrent data to object storage for s3:// move destinations.
type Service interface {
	// UploadDirectory uploads a file or every file below a directory and
	// returns the s3:// location written to.
	UploadDirectory(ctx context.Context, localPath string, opts UploadOptions) (string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	// DeletePrefix removes every object below prefix and reports how many
	// were deleted.
	DeletePrefix(ctx context.Context, bucket, prefix string) (int, error)
}

// uploadName is the first key segment below prefix. Move actions write to
// <prefix>/<torrent name>/<file>, so this is the torrent name.
func uploadName(prefix, key string) string {
	rest := strings.TrimLeft(strings.TrimPrefix(key, prefix), "/")
	if name, _, _ := strings.Cut(rest, "/"); name != "" {
		return name
	}
	return path.Base(key)
}

// SummarizeUploads groups objects by Upload, sorted by name.
func SummarizeUploads(objects []ObjectInfo) []UploadSummary {
	byName := make(map[string]*UploadSummary)
	for _, obj := range objects {
		sum, ok := byName[obj.Upload]
		if !ok {
			sum = &UploadSummary{Name: obj.Upload}
			byName[obj.Upload] = sum
		}
		sum.Objects++
		sum.Size += obj.Size
		if obj.LastModified != nil && (sum.LastModified == nil || obj.LastModified.After(*sum.LastModified)) {
			sum.LastModified = obj.LastModified
		}
	}

	out := make([]UploadSummary, 0, len(byName))
	for _, sum := range byName {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
