package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
)

// S3API is the subset of *s3.Client used for export files.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// DynamoAPI is the subset of *dynamodb.Client used for the export index.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// newAWS builds S3 file storage, indexed in DynamoDB when a table is
// configured and in a local JSON file otherwise.
func newAWS(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("aws storage requires an S3 bucket")
	}
	region := cfg.AWSRegion
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	blobs := NewS3BlobStore(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix)
	var index Index
	if cfg.DynamoDBTable != "" {
		index = NewDynamoIndex(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)
	} else {
		index = NewJSONIndex(filepath.Join(cfg.LocalPath, "index.json"))
	}
	return NewStorage(blobs, index), nil
}

// S3BlobStore writes exports to an S3 bucket under a key prefix.
type S3BlobStore struct {
	client S3API
	bucket string
	prefix string
}

// NewS3BlobStore creates an S3-backed blob store.
func NewS3BlobStore(client S3API, bucket, prefix string) *S3BlobStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3BlobStore{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads data and returns its s3:// location.
func (s *S3BlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	full := s.prefix + key
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("putting object to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, full), nil
}

// Get downloads the object stored under key.
func (s *S3BlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	return out.Body, nil
}

const exportPK = "EXPORT"

// indexItem is the DynamoDB row for one export.
type indexItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
}

// DynamoIndex keeps the export index in a DynamoDB table keyed PK/SK.
type DynamoIndex struct {
	client DynamoAPI
	table  string
}

// NewDynamoIndex creates a DynamoDB-backed index.
func NewDynamoIndex(client DynamoAPI, table string) *DynamoIndex {
	return &DynamoIndex{client: client, table: table}
}

// Add writes rec under the EXPORT partition, sorted by creation time.
func (d *DynamoIndex) Add(ctx context.Context, rec domain.ExportRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling export record: %w", err)
	}
	item := indexItem{
		PK:        exportPK,
		SK:        rec.CreatedAt.UTC().Format(time.RFC3339Nano) + "#" + rec.Key,
		Data:      string(data),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// List queries the EXPORT partition newest first.
func (d *DynamoIndex) List(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: exportPK},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	result, err := d.client.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	recs := make([]domain.ExportRecord, 0, len(result.Items))
	for _, item := range result.Items {
		var row indexItem
		if err := attributevalue.UnmarshalMap(item, &row); err != nil {
			continue
		}
		var rec domain.ExportRecord
		if err := json.Unmarshal([]byte(row.Data), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
