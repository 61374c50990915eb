// Package reaction stores per-user comment reactions and keeps totals exact
// under concurrent requests.
//
// Files:
//   - types.go: errors, Summary and Target
//   - service.go: atomic toggle/set and totals
//   - locator.go: comment -> article -> board lookup
//   - handler.go: HTTP endpoints and board fan-out
package reaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mocktalk/realtime/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

var reactionConflict = []clause.Column{{Name: "user_id"}, {Name: "comment_id"}}

// Toggle flips the caller's reaction: requesting the value already stored
// clears it, anything else stores the requested value. The state change is a
// single INSERT .. ON CONFLICT statement so concurrent toggles serialize on
// the (user_id, comment_id) key instead of racing a read-then-write.
func (s *Service) Toggle(ctx context.Context, userID, commentID int64, requested int8) (Summary, error) {
	if !validToggle(requested) {
		return Summary{}, ErrInvalidReaction
	}
	if userID <= 0 || commentID <= 0 {
		return Summary{}, ErrInvalidTarget
	}

	var summary Summary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		row := models.CommentReactionModel{
			UserID:       userID,
			CommentID:    commentID,
			ReactionType: requested,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := toggleUpsert(tx, &row).Error; err != nil {
			return err
		}

		current, err := currentReaction(tx, userID, commentID)
		if err != nil {
			return err
		}
		if current == models.ReactionNone {
			if err := deleteReaction(tx, userID, commentID); err != nil {
				return err
			}
		}

		summary, err = summarize(tx, commentID)
		summary.MyReaction = current
		return err
	})
	if err != nil {
		return Summary{}, fmt.Errorf("toggle reaction: %w", err)
	}
	return summary, nil
}

// toggleUpsert inserts row or, when the user already reacted, flips the stored
// value in the same statement: equal to row.ReactionType clears to 0,
// anything else becomes row.ReactionType.
func toggleUpsert(tx *gorm.DB, row *models.CommentReactionModel) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns: reactionConflict,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"reaction_type": gorm.Expr("CASE WHEN reaction_type = ? THEN 0 ELSE ? END", row.ReactionType, row.ReactionType),
			"updated_at":    row.UpdatedAt,
		}),
	}).Create(row)
}

// Set stores an absolute reaction; 0 removes it.
func (s *Service) Set(ctx context.Context, userID, commentID int64, value int8) (Summary, error) {
	if !validValue(value) {
		return Summary{}, ErrInvalidValue
	}
	if userID <= 0 || commentID <= 0 {
		return Summary{}, ErrInvalidTarget
	}

	var summary Summary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if value == models.ReactionNone {
			if err := deleteReaction(tx, userID, commentID); err != nil {
				return err
			}
		} else {
			now := s.now()
			row := models.CommentReactionModel{
				UserID:       userID,
				CommentID:    commentID,
				ReactionType: value,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: reactionConflict,
				DoUpdates: clause.Assignments(map[string]interface{}{
					"reaction_type": value,
					"updated_at":    now,
				}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}

		var err error
		summary, err = summarize(tx, commentID)
		summary.MyReaction = value
		return err
	})
	if err != nil {
		return Summary{}, fmt.Errorf("set reaction: %w", err)
	}
	return summary, nil
}

// Summary returns totals for one comment. userID 0 means anonymous.
func (s *Service) Summary(ctx context.Context, userID, commentID int64) (Summary, error) {
	db := s.db.WithContext(ctx)
	summary, err := summarize(db, commentID)
	if err != nil {
		return Summary{}, err
	}
	if userID > 0 {
		mine, err := currentReaction(db, userID, commentID)
		if err != nil {
			return Summary{}, err
		}
		summary.MyReaction = mine
	}
	return summary, nil
}

// Summaries returns totals for several comments in input order, skipping
// duplicates.
func (s *Service) Summaries(ctx context.Context, userID int64, commentIDs []int64) ([]Summary, error) {
	ids := uniqueIDs(commentIDs)
	if len(ids) == 0 {
		return []Summary{}, nil
	}
	if len(ids) > maxBatchSize {
		return nil, fmt.Errorf("%w (max %d)", ErrTooManyIDs, maxBatchSize)
	}
	db := s.db.WithContext(ctx)

	var rows []counts
	err := db.Model(&models.CommentReactionModel{}).
		Select("comment_id, " + likeSums).
		Where("comment_id IN ?", ids).
		Group("comment_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]counts, len(rows))
	for _, r := range rows {
		byID[r.CommentID] = r
	}

	mine := map[int64]int8{}
	if userID > 0 {
		var own []models.CommentReactionModel
		if err := db.Select("comment_id", "reaction_type").
			Where("user_id = ? AND comment_id IN ?", userID, ids).
			Find(&own).Error; err != nil {
			return nil, err
		}
		for _, r := range own {
			mine[r.CommentID] = r.ReactionType
		}
	}

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		c := byID[id]
		out = append(out, Summary{CommentID: id, LikeCount: c.Likes, DislikeCount: c.Dislikes, MyReaction: mine[id]})
	}
	return out, nil
}

const likeSums = "COALESCE(SUM(CASE WHEN reaction_type = 1 THEN 1 ELSE 0 END), 0) AS likes, " +
	"COALESCE(SUM(CASE WHEN reaction_type = -1 THEN 1 ELSE 0 END), 0) AS dislikes"

func summarize(db *gorm.DB, commentID int64) (Summary, error) {
	var c counts
	err := db.Model(&models.CommentReactionModel{}).
		Select(likeSums).
		Where("comment_id = ?", commentID).
		Scan(&c).Error
	if err != nil {
		return Summary{}, err
	}
	return Summary{CommentID: commentID, LikeCount: c.Likes, DislikeCount: c.Dislikes}, nil
}

func currentReaction(db *gorm.DB, userID, commentID int64) (int8, error) {
	var row models.CommentReactionModel
	err := db.Select("reaction_type").
		Where("user_id = ? AND comment_id = ?", userID, commentID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ReactionNone, nil
	}
	if err != nil {
		return 0, err
	}
	return row.ReactionType, nil
}

func deleteReaction(tx *gorm.DB, userID, commentID int64) error {
	return tx.Where("user_id = ? AND comment_id = ?", userID, commentID).
		Delete(&models.CommentReactionModel{}).Error
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
