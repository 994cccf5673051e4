package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/landfill/clairkeys/config"
	"github.com/landfill/clairkeys/logger"
)

var (
	minioClient *minio.Client
	bucket      string
)

// InitMinio initializes the MinIO client and ensures the bucket exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	bucket = cfg.MinioBucket
	return nil
}

// GetMinioClient returns the initialized client, or nil before InitMinio.
func GetMinioClient() *minio.Client {
	return minioClient
}

// PDFKey builds the object key for an uploaded sheet PDF.
func PDFKey(userID int64, filename string) string {
	return fmt.Sprintf("pdf/%d/%s", userID, filename)
}

// AnimationKey builds the object key for a processed animation JSON.
func AnimationKey(sheetID int64) string {
	return fmt.Sprintf("animations/%d.json", sheetID)
}

// UploadPDF stores a sheet music PDF.
func UploadPDF(ctx context.Context, key string, r io.Reader, size int64) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	_, err := minioClient.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return fmt.Errorf("failed to upload PDF %s: %w", key, err)
	}
	return nil
}

// UploadAnimation stores animation JSON bytes.
func UploadAnimation(ctx context.Context, key string, data []byte) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	_, err := minioClient.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload animation %s: %w", key, err)
	}
	return nil
}

// FetchAnimation reads animation JSON bytes back from storage.
func FetchAnimation(ctx context.Context, key string) ([]byte, error) {
	if minioClient == nil {
		return nil, fmt.Errorf("MinIO client not initialized")
	}
	obj, err := minioClient.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch animation %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read animation %s: %w", key, err)
	}
	return data, nil
}

// RemoveObject deletes an object. Used when a sheet record is deleted.
func RemoveObject(ctx context.Context, key string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	return minioClient.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}
