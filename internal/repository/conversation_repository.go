package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/model"
	"gorm.io/gorm"
)

type ConversationRepository interface {
	// FindOrCreate returns the conversation of the canonical (userA, userB, productID)
	// triple, creating it when absent. created reports which happened.
	FindOrCreate(ctx context.Context, userA, userB string, productID uint64) (cv *model.Conversation, created bool, err error)
	FindByUser(ctx context.Context, uid string) ([]model.Conversation, error)
	FindByID(ctx context.Context, id uint64) (*model.Conversation, error)
	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, convID uint64) ([]model.Message, error)
	LastMessages(ctx context.Context, convIDs []uint64) (map[uint64]model.Message, error)
	MarkRead(ctx context.Context, convID uint64, receiverUID string) (int64, error)
	SetDB(db *gorm.DB)
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) SetDB(db *gorm.DB) {
	r.db = db
}

func (r *conversationRepository) FindOrCreate(ctx context.Context, userA, userB string, productID uint64) (*model.Conversation, bool, error) {
	if r.db == nil {
		return nil, false, ErrDBNotReady
	}
	userA, userB = model.CanonicalPair(userA, userB)
	conn := db.Conn(ctx, r.db)

	var cv model.Conversation
	err := conn.Where("user_a = ? AND user_b = ? AND product_id = ?", userA, userB, productID).
		First(&cv).Error
	if err == nil {
		return &cv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	cv = model.Conversation{UserA: userA, UserB: userB, ProductID: productID}
	if err := conn.Create(&cv).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, err
		}
		// lost a creation race; the winner's row is the conversation
		var existing model.Conversation
		if err := conn.Where("user_a = ? AND user_b = ? AND product_id = ?", userA, userB, productID).
			First(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}
	return &cv, true, nil
}

func (r *conversationRepository) FindByUser(ctx context.Context, uid string) ([]model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Conversation
	if err := db.Conn(ctx, r.db).
		Where("user_a = ? OR user_b = ?", uid, uid).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id uint64) (*model.Conversation, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var cv model.Conversation
	if err := db.Conn(ctx, r.db).First(&cv, id).Error; err != nil {
		return nil, err
	}
	return &cv, nil
}

// CreateMessage appends msg and bumps the conversation's updated_at in the
// same write transaction.
func (r *conversationRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return db.NewTxManager(r.db).WithTransaction(ctx, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.db)
		if err := conn.Create(msg).Error; err != nil {
			return err
		}
		res := conn.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *conversationRepository) ListMessages(ctx context.Context, convID uint64) ([]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var msgs []model.Message
	if err := db.Conn(ctx, r.db).
		Where("conversation_id = ?", convID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// LastMessages returns the newest message of each conversation that has one.
func (r *conversationRepository) LastMessages(ctx context.Context, convIDs []uint64) (map[uint64]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	out := make(map[uint64]model.Message, len(convIDs))
	if len(convIDs) == 0 {
		return out, nil
	}
	conn := db.Conn(ctx, r.db)
	latest := conn.Model(&model.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", convIDs).
		Group("conversation_id")
	var msgs []model.Message
	if err := conn.Where("id IN (?)", latest).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ConversationID] = m
	}
	return out, nil
}

// MarkRead flags every unread message addressed to receiverUID as read.
func (r *conversationRepository) MarkRead(ctx context.Context, convID uint64, receiverUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := db.Conn(ctx, r.db).
		Model(&model.Message{}).
		Where("conversation_id = ? AND receiver_uid = ? AND is_read = ?", convID, receiverUID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
