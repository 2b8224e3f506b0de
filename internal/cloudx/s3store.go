package cloudx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// zoneMarker is the object written when a zone is created, so an empty
// zone is distinguishable from a deleted or never-created one.
const zoneMarker = ".zone"

// S3Config holds the object-storage settings for the record store.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	BaseEndpoint string
}

// S3RecordStore is the RecordStore implementation over an S3-compatible
// backend. Records are JSON objects at <scope>/<zone>/<record>.json.
type S3RecordStore struct {
	client *s3.Client
	bucket string
}

// NewS3RecordStore builds the store from static credentials, pointing at
// the configured endpoint (MinIO in development).
func NewS3RecordStore(ctx context.Context, cfg S3Config) (*S3RecordStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3RecordStore{client: client, bucket: cfg.Bucket}, nil
}

func zonePrefix(scope, zone string) string {
	return path.Join(scope, zone) + "/"
}

func recordKey(scope, zone, recordName string) string {
	return path.Join(scope, zone, recordName+".json")
}

func (s *S3RecordStore) EnsureZone(ctx context.Context, scope, zone string) error {
	key := path.Join(scope, zone, zoneMarker)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader([]byte("{}")),
	})
	if err != nil {
		return WrapRecoverable(fmt.Errorf("failed to create zone %s: %w", zone, err))
	}
	return nil
}

func (s *S3RecordStore) DeleteZone(ctx context.Context, scope, zone string) error {
	keys, err := s.listKeys(ctx, zonePrefix(scope, zone))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
			return WrapRecoverable(fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	return nil
}

func (s *S3RecordStore) ListZones(ctx context.Context, scope string) ([]string, error) {
	prefix := scope + "/"
	delimiter := "/"

	var zones []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			Delimiter:         &delimiter,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, WrapRecoverable(fmt.Errorf("failed to list zones: %w", err))
		}
		for _, cp := range out.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			zone := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
			if zone != "" {
				zones = append(zones, zone)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return zones, nil
}

func (s *S3RecordStore) SaveRecords(ctx context.Context, scope string, records []*Record) error {
	failures := map[string]error{}
	for _, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", rec.RecordName, err)
		}
		key := recordKey(scope, rec.Zone, rec.RecordName)
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
			Body:   bytes.NewReader(body),
		})
		if err != nil {
			failures[rec.RecordName] = WrapRecoverable(err)
		}
	}
	if len(failures) > 0 {
		return &PartialError{Failures: failures}
	}
	return nil
}

func (s *S3RecordStore) FetchZoneRecords(ctx context.Context, scope, zone string) ([]*Record, error) {
	keys, err := s.listKeys(ctx, zonePrefix(scope, zone))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrZoneNotFound
	}

	var records []*Record
	for _, key := range keys {
		if path.Base(key) == zoneMarker {
			continue
		}
		rec, err := s.fetchRecord(ctx, key)
		if errors.Is(err, ErrRecordNotFound) {
			// Deleted between list and fetch; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *S3RecordStore) DeleteRecords(ctx context.Context, scope, zone string, recordNames []string) error {
	for _, name := range recordNames {
		key := recordKey(scope, zone, name)
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
			return WrapRecoverable(fmt.Errorf("failed to delete record %s: %w", name, err))
		}
	}
	return nil
}

func (s *S3RecordStore) fetchRecord(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrRecordNotFound
		}
		return nil, WrapRecoverable(fmt.Errorf("failed to fetch %s: %w", key, err))
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, WrapRecoverable(fmt.Errorf("failed to read %s: %w", key, err))
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("record %s is not valid JSON: %w", key, err)
	}
	return &rec, nil
}

func (s *S3RecordStore) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, WrapRecoverable(fmt.Errorf("failed to list %s: %w", prefix, err))
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}
