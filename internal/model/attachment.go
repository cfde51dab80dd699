package model

import (
	"errors"
	"time"
)

// AttachmentModel 附件数据模型
// 附件内容存放在外部 blob 存储,这里仅记录引用
// ExecutionID 非空表示附件已关联到某次执行,完成门禁据此计数
type AttachmentModel struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	RoutineID   string    `gorm:"type:varchar(64);not null;index"`
	ExecutionID *string   `gorm:"type:varchar(64);index"`
	Reference   string    `gorm:"type:varchar(512);not null"` // blob 存储返回的引用
	Description string    `gorm:"type:text"`
	UploadedBy  string    `gorm:"type:varchar(64);index"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (AttachmentModel) TableName() string {
	return "attachments"
}

// Validate 验证附件模型
func (am *AttachmentModel) Validate() error {
	if am.ID == "" {
		return errors.New("attachment ID is required")
	}
	if am.RoutineID == "" {
		return errors.New("routine ID is required")
	}
	if am.Reference == "" {
		return errors.New("attachment reference is required")
	}
	return nil
}
