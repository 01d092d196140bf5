package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

// proposalRepository implements the ProposalRepository interface
type proposalRepository struct {
	db     *gorm.DB
	lister *sortedLister
}

// NewProposalRepository creates a new proposal repository instance
func NewProposalRepository(db *gorm.DB) ProposalRepository {
	return &proposalRepository{db: db}
}

// Create creates a new proposal in the database
func (r *proposalRepository) Create(ctx context.Context, proposal *models.Proposal) error {
	return r.db.WithContext(ctx).Create(proposal).Error
}

// GetByID retrieves a proposal by its ID
func (r *proposalRepository) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&proposal).Error; err != nil {
		return nil, err
	}
	return &proposal, nil
}

// UpdateIfStatus applies changes only while the proposal is still in one of
// the from states. Two concurrent decisions cannot both succeed.
func (r *proposalRepository) UpdateIfStatus(ctx context.Context, id string, from []models.ProposalStatus, changes *models.Proposal, columns ...string) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	res := r.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("id = ? AND status IN ?", id, statuses).
		Select(columns).
		Updates(changes)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// List retrieves proposals newest first
func (r *proposalRepository) List(ctx context.Context, filter ProposalFilter) ([]models.Proposal, error) {
	where := equality(
		"client_id", filter.ClientID,
		"vendor_id", filter.VendorID,
		"conversation_id", filter.ConversationID,
		"order_id", filter.OrderID,
		"status", string(filter.Status),
	)
	return listNewestFirst(ctx, r.lister, r.db, where, filter.Limit, func(p *models.Proposal) time.Time {
		return p.CreatedAt
	})
}
