package storage

import (
	"context"
	"fmt"
	"strings"
)

// DocumentStore 原始文档字节的存取
type DocumentStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix 删除某前缀下的全部对象，返回删除数量
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// ContentTypePDF 上传文档的内容类型
const ContentTypePDF = "application/pdf"

// DocumentKey <tenant>/docs/<document_type 小写, 空格替换为下划线>.pdf
func DocumentKey(tenantID, documentType string) string {
	return fmt.Sprintf("%s/docs/%s.pdf", tenantID, SafeName(documentType))
}

// ValidateTenantID 租户ID是存储键的第一段，不能包含路径分隔符
func ValidateTenantID(tenantID string) error {
	if tenantID == "" || tenantID == "." || tenantID == ".." || strings.ContainsAny(tenantID, `/\`) {
		return fmt.Errorf("invalid tenant id %q", tenantID)
	}
	return nil
}

// TenantPrefix 租户下全部对象的前缀，调用方需先通过 ValidateTenantID
func TenantPrefix(tenantID string) string {
	return tenantID + "/"
}

// SafeName 文档类型转为可用作文件名的形式
func SafeName(documentType string) string {
	name := strings.ToLower(strings.TrimSpace(documentType))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	return name
}
