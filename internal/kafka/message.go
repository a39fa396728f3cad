package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IngestJob 异步入库任务，文档字节已存入文档存储
type IngestJob struct {
	JobID        string    `json:"job_id"`
	TenantID     string    `json:"hoa_code"`
	DocumentType string    `json:"document_type"`
	StorageKey   string    `json:"storage_key"`
	RequestedAt  time.Time `json:"requested_at"`
	RetryCount   int       `json:"retry_count,omitempty"`
}

// NewIngestJob 生成带 uuid 的任务
func NewIngestJob(tenantID, documentType, storageKey string) IngestJob {
	return IngestJob{
		JobID:        uuid.NewString(),
		TenantID:     tenantID,
		DocumentType: documentType,
		StorageKey:   storageKey,
		RequestedAt:  time.Now().UTC(),
	}
}

// ParseIngestJob 解析入库任务消息
func ParseIngestJob(data []byte) (*IngestJob, error) {
	var job IngestJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("解析消息失败: %w", err)
	}
	if job.TenantID == "" || job.DocumentType == "" || job.StorageKey == "" {
		return nil, fmt.Errorf("解析消息失败: 缺少 hoa_code/document_type/storage_key")
	}
	return &job, nil
}
