package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/landfill/clairkeys/model"
)

// animationTTL bounds how long decoded animation JSON stays cached. Pieces
// are immutable once processed, so a long TTL is safe.
const animationTTL = 24 * time.Hour

// jobStatusTTL bounds how long OMR job status records live.
const jobStatusTTL = time.Hour

func animationKey(sheetID int64) string {
	return fmt.Sprintf("animation:%d", sheetID)
}

func jobKey(jobID string) string {
	return fmt.Sprintf("omr:job:%s", jobID)
}

// GetAnimation fetches cached animation data for a sheet. Returns nil with
// no error on a cache miss.
func GetAnimation(ctx context.Context, sheetID int64) (*model.AnimationData, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	raw, err := RedisClient.Get(ctx, animationKey(sheetID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached animation: %w", err)
	}

	return model.ParseAnimationData(raw)
}

// SetAnimation stores animation data for a sheet.
func SetAnimation(ctx context.Context, sheetID int64, data *model.AnimationData) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal animation data: %w", err)
	}
	if err := RedisClient.Set(ctx, animationKey(sheetID), raw, animationTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache animation: %w", err)
	}
	return nil
}

// InvalidateAnimation drops the cached animation for a sheet.
func InvalidateAnimation(ctx context.Context, sheetID int64) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return RedisClient.Del(ctx, animationKey(sheetID)).Err()
}

// JobStatus is the cached state of an OMR processing job.
type JobStatus struct {
	JobID     string `json:"jobId"`
	SheetID   int64  `json:"sheetId"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	UpdatedAt int64  `json:"updatedAt"`
}

// SetJobStatus records the state of a processing job.
func SetJobStatus(ctx context.Context, status JobStatus) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	status.UpdatedAt = time.Now().UnixMilli()
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal job status: %w", err)
	}
	if err := RedisClient.Set(ctx, jobKey(status.JobID), raw, jobStatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job status: %w", err)
	}
	return nil
}

// GetJobStatus fetches the state of a processing job. Returns nil with no
// error when the job is unknown or expired.
func GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	raw, err := RedisClient.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}

	var status JobStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to decode job status: %w", err)
	}
	return &status, nil
}
