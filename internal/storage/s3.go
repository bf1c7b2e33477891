package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteBatchSize is the most keys one DeleteObjects call accepts.
const deleteBatchSize = 1000

const progressInterval = 200 * time.Millisecond

type objectClient interface {
	s3.ListObjectsV2APIClient
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Service writes torrent data to Amazon S3 (or compatible APIs).
type S3Service struct {
	client   objectClient
	uploader *manager.Uploader
}

// NewS3Service uploads through the multipart manager and lists and deletes
// with the plain client.
func NewS3Service(client *s3.Client) *S3Service {
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

type uploadFile struct {
	path string
	rel  string
	size int64
}

func (s *S3Service) UploadDirectory(ctx context.Context, localPath string, opts UploadOptions) (string, error) {
	if opts.Bucket == "" {
		return "", ErrBucketRequired
	}

	files, err := collectFiles(filepath.Clean(localPath))
	if err != nil {
		return "", err
	}

	var total int64
	for _, file := range files {
		total += file.size
	}
	progress := newTransferProgress(total, opts.ProgressCallback)
	progress.start()

	keyPrefix := strings.Trim(opts.KeyPrefix, "/")
	for _, file := range files {
		key := file.rel
		if keyPrefix != "" {
			key = keyPrefix + "/" + file.rel
		}
		if err := s.putFile(ctx, opts.Bucket, key, file.path, progress); err != nil {
			return "", err
		}
	}
	progress.finish()

	return fmt.Sprintf("s3://%s/%s", opts.Bucket, keyPrefix), nil
}

func (s *S3Service) putFile(ctx context.Context, bucket, key, path string, progress *transferProgress) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file %s: %w", path, err)
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   progress.wrap(f),
		ACL:    types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

// collectFiles lists what to upload below root. A single file is keyed by
// its base name.
func collectFiles(root string) ([]uploadFile, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat local path: %w", err)
	}
	if !fi.IsDir() {
		return []uploadFile{{path: root, rel: filepath.Base(root), size: fi.Size()}}, nil
	}

	var files []uploadFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		files = append(files, uploadFile{
			path: path,
			rel:  filepath.ToSlash(rel),
			size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ListObjects returns every object below prefix, tagged with the torrent
// upload it belongs to.
func (s *S3Service) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if bucket == "" {
		return nil, ErrBucketRequired
	}
	prefix = normalizePrefix(prefix)

	var objects []ObjectInfo
	err := s.eachPage(ctx, bucket, prefix, func(page []types.Object) error {
		for _, obj := range page {
			key := aws.ToString(obj.Key)
			objects = append(objects, ObjectInfo{
				Key:          key,
				Upload:       uploadName(prefix, key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: obj.LastModified,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (s *S3Service) DeletePrefix(ctx context.Context, bucket, prefix string) (int, error) {
	if bucket == "" {
		return 0, ErrBucketRequired
	}
	prefix = normalizePrefix(prefix)
	if prefix == "" {
		return 0, errors.New("prefix is required")
	}

	deleted := 0
	err := s.eachPage(ctx, bucket, prefix, func(page []types.Object) error {
		for start := 0; start < len(page); start += deleteBatchSize {
			batch := page[start:min(start+deleteBatchSize, len(page))]
			n, err := s.deleteBatch(ctx, bucket, batch)
			deleted += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}

func (s *S3Service) deleteBatch(ctx context.Context, bucket string, batch []types.Object) (int, error) {
	ids := make([]types.ObjectIdentifier, len(batch))
	for i, obj := range batch {
		ids[i] = types.ObjectIdentifier{Key: obj.Key}
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return 0, fmt.Errorf("delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return len(ids) - len(out.Errors), fmt.Errorf("delete %s: %s (%d of %d keys failed)",
			aws.ToString(first.Key), aws.ToString(first.Message), len(out.Errors), len(ids))
	}
	return len(ids), nil
}

// eachPage calls fn with every non-empty listing page below prefix.
func (s *S3Service) eachPage(ctx context.Context, bucket, prefix string, fn func([]types.Object) error) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects in %s: %w", bucket, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		if err := fn(page.Contents); err != nil {
			return err
		}
	}
	return nil
}

func normalizePrefix(prefix string) string {
	return strings.TrimLeft(strings.TrimSpace(prefix), "/")
}

var _ Service = (*S3Service)(nil)

// transferProgress counts bytes read across every file of one upload. A nil
// *transferProgress does nothing.
type transferProgress struct {
	mu    sync.Mutex
	total int64
	sent  int64
	last  time.Time
	cb    func(done, total int64)
}

func newTransferProgress(total int64, cb func(done, total int64)) *transferProgress {
	if cb == nil {
		return nil
	}
	return &transferProgress{total: total, cb: cb}
}

func (p *transferProgress) wrap(r io.Reader) io.Reader {
	if p == nil {
		return r
	}
	return &countingReader{r: r, progress: p}
}

func (p *transferProgress) start() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = time.Now()
	p.cb(0, p.total)
}

// add reports at most once per progressInterval, and always on the last
// byte.
func (p *transferProgress) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent += n
	if p.sent < p.total && time.Since(p.last) < progressInterval {
		return
	}
	p.last = time.Now()
	p.cb(p.sent, p.total)
}

func (p *transferProgress) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb(p.sent, p.total)
}

type countingReader struct {
	r        io.Reader
	progress *transferProgress
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.progress.add(int64(n))
	}
	return n, err
}
