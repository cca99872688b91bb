package regionmgr

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"

	"github.com/sharedcode/lodc"
	"github.com/sharedcode/lodc/erasure"
)

// maxTransferAttempts bounds how many times one shard or manifest
// upload/download is retried before Archive/Restore gives up on it.
const maxTransferAttempts = 5

// uploadWithRetry retries a single PutObject against transient network
// conditions (timeouts, resets) the way fullWriteAt retries a short
// write against a disk — the cold tier is a network hop instead of a
// syscall, but a flaky connection deserves the same second chance a
// flaky disk gets. body is re-wrapped in a fresh reader on every
// attempt since an s3.PutObjectInput's Body is consumed by the first try.
func uploadWithRetry(ctx context.Context, uploader *manager.Uploader, bucket, key string, body []byte) error {
	return lodc.Retry(ctx, maxTransferAttempts, func(ctx context.Context) error {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(body),
		})
		if err != nil && lodc.ShouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	}, nil)
}

// downloadWithRetry is uploadWithRetry's download counterpart. A fresh
// WriteAtBuffer backs every attempt so a retried download never appends
// to bytes a prior, failed attempt already wrote.
func downloadWithRetry(ctx context.Context, downloader *manager.Downloader, bucket, key string) ([]byte, error) {
	var result []byte
	err := lodc.Retry(ctx, maxTransferAttempts, func(ctx context.Context) error {
		buf := manager.NewWriteAtBuffer(nil)
		_, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if lodc.ShouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = buf.Bytes()
		return nil
	}, nil)
	return result, err
}

// ColdArchiveConfig mirrors the teacher's aws_s3.Config: enough to reach
// an S3-compatible endpoint (AWS or a self-hosted object store) without
// pulling in the full AWS SDK config/credential-chain resolution.
type ColdArchiveConfig struct {
	HostEndpointURL string
	Region          string
	Username        string
	Password        string
}

// NewColdArchiveClient builds an s3.Client against a static endpoint and
// credentials, the same shape as the teacher's aws_s3.Connect helper.
func NewColdArchiveClient(cfg ColdArchiveConfig) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.HostEndpointURL)
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.Username, cfg.Password, "")
	})
}

// ColdArchiver offloads evictable regions' raw bytes to an S3-compatible
// bucket once the region manager's eviction policy (out of scope here)
// decides to reclaim local disk space, the same cold-tier role the
// teacher's aws_s3 bucket store plays for blobs evicted from its B-tree
// cache. Every region is erasure-coded with a Mirror before it leaves
// the process: the cold tier is one bucket, but losing one shard object
// to a partial upload, a bucket-lifecycle hiccup, or one corrupted PUT
// shouldn't cost the whole region once it's this far from the disk it
// was protecting in the first place.
type ColdArchiver struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	mirror     *erasure.Mirror
}

// NewColdArchiver wraps an already-configured S3 client. mirror encodes
// every region into dataShards+parityShards pieces before upload; pass
// erasure.NewMirror(dataShards, parityShards) with parityShards>0 to
// tolerate that many lost or corrupted shard objects on restore.
func NewColdArchiver(client *s3.Client, bucket string, mirror *erasure.Mirror) *ColdArchiver {
	return &ColdArchiver{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		mirror:     mirror,
	}
}

func (a *ColdArchiver) manifestKey(regionID uint32) string {
	return fmt.Sprintf("region-%d/manifest", regionID)
}

func (a *ColdArchiver) shardKey(regionID uint32, shard int) string {
	return fmt.Sprintf("region-%d/shard-%d", regionID, shard)
}

// Archive erasure-codes a clean-evicted region's bytes and uploads each
// shard (tag prefixed) as its own object, plus a small manifest object
// recording the original byte count Join needs to trim padding back off
// on restore.
func (a *ColdArchiver) Archive(ctx context.Context, regionID uint32, data []byte) error {
	shards, tags, err := a.mirror.Encode(data)
	if err != nil {
		return err
	}

	manifest := make([]byte, 8)
	binary.LittleEndian.PutUint64(manifest, uint64(len(data)))
	if err := uploadWithRetry(ctx, a.uploader, a.bucket, a.manifestKey(regionID), manifest); err != nil {
		return fmt.Errorf("upload manifest for region %d: %w", regionID, err)
	}

	for i, shard := range shards {
		body := make([]byte, 0, erasure.ChecksumSize+len(shard))
		body = append(body, tags[i][:]...)
		body = append(body, shard...)
		if err := uploadWithRetry(ctx, a.uploader, a.bucket, a.shardKey(regionID, i), body); err != nil {
			return fmt.Errorf("upload shard %d of region %d: %w", i, regionID, err)
		}
	}
	return nil
}

// Restore fetches a previously archived region's bytes back from the
// cold tier, used when the eviction policy decides to rehydrate it.
// Missing or tag-mismatched shard objects are reconstructed from the
// surviving ones rather than failing the restore outright, as long as
// at least dataShards of them came back clean.
func (a *ColdArchiver) Restore(ctx context.Context, regionID uint32) ([]byte, error) {
	manifest, err := downloadWithRetry(ctx, a.downloader, a.bucket, a.manifestKey(regionID))
	if err != nil {
		return nil, fmt.Errorf("fetch manifest for region %d: %w", regionID, err)
	}
	if len(manifest) < 8 {
		return nil, fmt.Errorf("region %d manifest is truncated", regionID)
	}
	dataSize := int(binary.LittleEndian.Uint64(manifest[:8]))

	shardCount := a.mirror.ShardCount()
	shards := make([][]byte, shardCount)
	tags := make([][erasure.ChecksumSize]byte, shardCount)
	for i := 0; i < shardCount; i++ {
		body, err := downloadWithRetry(ctx, a.downloader, a.bucket, a.shardKey(regionID, i))
		if err != nil {
			// Treat any fetch failure (including a retry budget that ran
			// out) as a missing shard; Reconstruct below decides whether
			// enough of the others survived.
			continue
		}
		if len(body) < erasure.ChecksumSize {
			continue
		}
		copy(tags[i][:], body[:erasure.ChecksumSize])
		shards[i] = body[erasure.ChecksumSize:]
	}

	data, err := a.mirror.Reconstruct(shards, tags, dataSize)
	if err != nil {
		return nil, fmt.Errorf("reconstruct region %d: %w", regionID, err)
	}
	return data, nil
}
