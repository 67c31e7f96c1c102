package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/krisavpn/fleetctl/internal/fleet"
)

// s3API is the subset of the S3 client the store uses, extracted so tests
// can substitute a fake.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store persists the fleet state as a single S3 object, for fleets
// managed from more than one workstation. The lock is a second object
// written with a conditional put, so two concurrent runs race on object
// creation the same way two local runs race on the lock file.
type S3Store struct {
	client s3API
	bucket string
	key    string
}

// S3Options configures the S3 state backend.
type S3Options struct {
	Bucket    string
	Key       string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Store creates a store backed by an S3 bucket.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: opts.Bucket, key: opts.Key}, nil
}

// Load implements Store. A missing object yields an empty state.
func (s *S3Store) Load(ctx context.Context) (fleet.State, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fleet.NewState(), nil
		}
		return fleet.State{}, fmt.Errorf("failed to get state object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return fleet.State{}, fmt.Errorf("failed to read state object: %w", err)
	}

	var st fleet.State
	if err := json.Unmarshal(data, &st); err != nil {
		return fleet.State{}, fmt.Errorf("failed to parse state object s3://%s/%s: %w", s.bucket, s.key, err)
	}
	if st.Version > fleet.StateVersion {
		return fleet.State{}, fmt.Errorf("state object has version %d, newer than this binary supports (%d)", st.Version, fleet.StateVersion)
	}
	if st.Nodes == nil {
		st.Nodes = make(map[string]fleet.NodeState)
	}
	return st, nil
}

// Save implements Store. S3 object puts are already atomic at the object
// level; readers see the old record or the new one, never a mix.
func (s *S3Store) Save(ctx context.Context, st fleet.State) error {
	st.Version = fleet.StateVersion

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	data = append(data, '\n')

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put state object: %w", err)
	}
	return nil
}

// Acquire implements Store with a conditional put of a lock object.
func (s *S3Store) Acquire(ctx context.Context) (func() error, error) {
	lockKey := s.key + ".lock"

	rec := lockRecord{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock record: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(lockKey),
		Body:        bytes.NewReader(data),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("%w (lock object: s3://%s/%s)", ErrLocked, s.bucket, lockKey)
		}
		return nil, fmt.Errorf("failed to put lock object: %w", err)
	}

	return func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(lockKey),
		})
		return err
	}, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "PreconditionFailed" || code == "ConditionalRequestConflict"
	}
	return false
}
