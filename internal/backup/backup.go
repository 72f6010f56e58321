// Package backup snapshots the sqlite store and uploads it to an
// S3-compatible bucket (Cloudflare R2, AWS S3, MinIO, ...), generalized
// from the teacher's Cloudflare-R2-specific service to any endpoint an
// aws-sdk-go-v2 client can reach.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Metadata describes one uploaded snapshot archive.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// Info is a listed backup object.
type Info struct {
	Key       string
	Timestamp time.Time
	SizeBytes int64
}

// Config configures the snapshot uploader.
type Config struct {
	Bucket          string
	Endpoint        string // empty uses the AWS default resolver; set for R2/MinIO
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	KeyPrefix string // object key prefix, e.g. "tao-treasury-backup-"
	Retain    int    // minimum number of backups to keep regardless of age
}

// Service snapshots a sqlite database and ships it to the configured bucket.
type Service struct {
	client *s3.Client
	cfg    Config
	log    zerolog.Logger
}

// New builds an S3-compatible client from cfg, pointed at a custom
// endpoint when one is configured (R2/MinIO), or the default AWS
// resolver otherwise.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tao-treasury-backup-"
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 3
	}

	return &Service{client: client, cfg: cfg, log: log.With().Str("component", "backup").Logger()}, nil
}

// Snapshot creates a point-in-time sqlite snapshot via VACUUM INTO
// (consistent even against a live connection, per sqlite's own
// recommendation for hot backups), archives it with gzip+tar, and
// uploads it. stagingDir holds the intermediate files and is removed
// on return.
func (s *Service) Snapshot(ctx context.Context, conn *sql.DB, stagingDir string) (Metadata, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return Metadata{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	snapshotPath := filepath.Join(stagingDir, "treasury.db")
	quoted := strings.ReplaceAll(snapshotPath, "'", "''")
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return Metadata{}, fmt.Errorf("vacuum into snapshot: %w", err)
	}

	checksum, err := checksumFile(snapshotPath)
	if err != nil {
		return Metadata{}, err
	}
	info, err := os.Stat(snapshotPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("stat snapshot: %w", err)
	}

	meta := Metadata{Timestamp: time.Now().UTC(), SizeBytes: info.Size(), Checksum: checksum}
	metaPath := filepath.Join(stagingDir, "metadata.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return Metadata{}, err
	}

	archivePath := filepath.Join(stagingDir, "archive.tar.gz")
	if err := createArchive(archivePath, map[string]string{
		"treasury.db":   snapshotPath,
		"metadata.json": metaPath,
	}); err != nil {
		return Metadata{}, fmt.Errorf("create archive: %w", err)
	}

	key := fmt.Sprintf("%s%s.tar.gz", s.cfg.KeyPrefix, meta.Timestamp.Format("2006-01-02-150405"))
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return Metadata{}, fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	archiveInfo, err := archiveFile.Stat()
	if err != nil {
		return Metadata{}, fmt.Errorf("stat archive: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          archiveFile,
		ContentLength: aws.Int64(archiveInfo.Size()),
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("upload snapshot %s: %w", key, err)
	}

	s.log.Info().Str("key", key).Int64("size_bytes", archiveInfo.Size()).Msg("uploaded treasury snapshot")
	return meta, nil
}

// List returns every snapshot object under the configured prefix,
// newest first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.KeyPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	infos := make([]Info, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		ts, err := parseTimestampFromKey(*obj.Key, s.cfg.KeyPrefix)
		if err != nil {
			s.log.Warn().Str("key", *obj.Key).Msg("skipping backup object with unparseable timestamp")
			continue
		}
		size := int64(0)
		if obj.Size != nil {
			size = *obj.Size
		}
		infos = append(infos, Info{Key: *obj.Key, Timestamp: ts, SizeBytes: size})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp.After(infos[j].Timestamp) })
	return infos, nil
}

// Rotate deletes backups older than retentionDays, always keeping at
// least Retain of the newest regardless of age. A retentionDays of zero
// or less applies no age cutoff, so every backup beyond the newest Retain
// is deleted.
func (s *Service) Rotate(ctx context.Context, retentionDays int) (deleted int, err error) {
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(infos) <= s.cfg.Retain {
		return 0, nil
	}

	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -retentionDays)
	}

	for i, info := range infos {
		if i < s.cfg.Retain {
			continue
		}
		if retentionDays > 0 && !info.Timestamp.Before(cutoff) {
			continue
		}
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(info.Key),
		}); err != nil {
			s.log.Error().Err(err).Str("key", info.Key).Msg("failed to delete old backup")
			continue
		}
		deleted++
	}
	return deleted, nil
}

func parseTimestampFromKey(key, prefix string) (time.Time, error) {
	name := strings.TrimPrefix(key, prefix)
	name = strings.TrimSuffix(name, ".tar.gz")
	return time.Parse("2006-01-02-150405", name)
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func writeMetadata(path string, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func createArchive(archivePath string, files map[string]string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gz := gzip.NewWriter(archiveFile)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := files[name]
		if err := addFileToArchive(tw, name, path); err != nil {
			return err
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
