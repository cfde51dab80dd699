package repository

import (
	"github.com/mautops/routine-gin/internal/model"
	"gorm.io/gorm"
)

// AttachmentRepository 附件仓储接口
type AttachmentRepository interface {
	Save(attachment *model.AttachmentModel) error
	FindByExecution(executionID string) ([]*model.AttachmentModel, error)
	CountByExecution(executionID string) (int64, error)
}

// attachmentRepository 附件仓储实现
type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository 创建附件仓储
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

// Save 保存附件引用
func (r *attachmentRepository) Save(attachment *model.AttachmentModel) error {
	return r.db.Save(attachment).Error
}

// FindByExecution 查找执行记录的全部附件
func (r *attachmentRepository) FindByExecution(executionID string) ([]*model.AttachmentModel, error) {
	var attachments []*model.AttachmentModel
	err := r.db.Where("execution_id = ?", executionID).Order("created_at ASC").Find(&attachments).Error
	return attachments, err
}

// CountByExecution 统计执行记录的附件数 (完成门禁用)
func (r *attachmentRepository) CountByExecution(executionID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.AttachmentModel{}).Where("execution_id = ?", executionID).Count(&count).Error
	return count, err
}
