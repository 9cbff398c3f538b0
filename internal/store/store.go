// Package store persists interviews with gorm.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"interview-stt-go/internal/types"
)

var (
	ErrNotFound = errors.New("interview not found")
	// ErrStaleRun is returned by a fenced update whose run token no longer
	// matches: a newer run owns the interview.
	ErrStaleRun = errors.New("run superseded by a newer run")
	// ErrInvalidTransition rejects a status change going backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Store interface {
	CreateInterview(ctx context.Context, iv *types.Interview) error
	// GetInterview returns nil, nil when the interview does not exist for userID.
	GetInterview(ctx context.Context, userID, id uuid.UUID) (*types.Interview, error)
	ListInterviews(ctx context.Context, userID uuid.UUID) ([]*types.Interview, error)
	UpdateInterview(ctx context.Context, userID, id uuid.UUID, upd types.InterviewUpdate) (*types.Interview, error)
	DeleteInterview(ctx context.Context, userID, id uuid.UUID) error
}

type gormStore struct {
	db  *gorm.DB
	log *logrus.Entry
}

// Open connects to dsn and migrates the schema. postgres:// and
// postgresql:// DSNs use postgres; anything else is a sqlite path, with an
// optional sqlite: prefix.
func Open(dsn string, log *logrus.Entry) (Store, *gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	default:
		path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite://"), "sqlite:")
		db, err = gorm.Open(sqlite.Open(path), cfg)
		if err == nil {
			// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&types.Interview{}); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return New(db, log), db, nil
}

func New(db *gorm.DB, log *logrus.Entry) Store {
	return &gormStore{db: db, log: log.WithField("component", "store")}
}

func (s *gormStore) CreateInterview(ctx context.Context, iv *types.Interview) error {
	if iv.ID == uuid.Nil {
		iv.ID = uuid.New()
	}
	if iv.Status == "" {
		iv.Status = types.StatusUploaded
	}
	if !iv.Status.Valid() {
		return fmt.Errorf("create interview: unknown status %q", iv.Status)
	}
	if err := s.db.WithContext(ctx).Create(iv).Error; err != nil {
		return fmt.Errorf("create interview: %w", err)
	}
	return nil
}

func (s *gormStore) GetInterview(ctx context.Context, userID, id uuid.UUID) (*types.Interview, error) {
	return s.get(s.db.WithContext(ctx), userID, id)
}

func (s *gormStore) get(tx *gorm.DB, userID, id uuid.UUID) (*types.Interview, error) {
	var iv types.Interview
	err := tx.Where("id = ? AND creator_id = ?", id, userID).Limit(1).Find(&iv).Error
	if err != nil {
		return nil, fmt.Errorf("get interview %s: %w", id, err)
	}
	if iv.ID == uuid.Nil {
		return nil, nil
	}
	return &iv, nil
}

func (s *gormStore) ListInterviews(ctx context.Context, userID uuid.UUID) ([]*types.Interview, error) {
	out := []*types.Interview{}
	err := s.db.WithContext(ctx).
		Where("creator_id = ?", userID).
		Order("upload_ts DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	return out, nil
}

// UpdateInterview applies upd in one transaction and returns the stored row.
func (s *gormStore) UpdateInterview(ctx context.Context, userID, id uuid.UUID, upd types.InterviewUpdate) (*types.Interview, error) {
	var out *types.Interview
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		cur, err := s.get(q, userID, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrNotFound
		}
		if upd.ExpectRunToken != nil && (cur.RunToken == nil || *cur.RunToken != *upd.ExpectRunToken) {
			return ErrStaleRun
		}

		updates, err := assignments(cur, upd)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			out = cur
			return nil
		}
		updates["update_ts"] = time.Now().UTC()

		w := tx.Model(&types.Interview{}).Where("id = ? AND creator_id = ?", id, userID)
		if upd.ExpectRunToken != nil {
			w = w.Where("run_token = ?", *upd.ExpectRunToken)
		}
		res := w.Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update interview %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleRun
		}
		out, err = s.get(tx, userID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func assignments(cur *types.Interview, upd types.InterviewUpdate) (map[string]interface{}, error) {
	updates := map[string]interface{}{}

	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Speakers != nil {
		merged := types.Speakers{}
		if len(upd.Speakers) > 0 {
			existing, err := cur.SpeakerNames()
			if err != nil {
				return nil, err
			}
			merged = existing
			for k, v := range upd.Speakers {
				merged[k] = v
			}
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return nil, err
		}
		updates["speakers"] = datatypes.JSON(raw)
	}
	if upd.Status != nil {
		if !cur.Status.CanAdvanceTo(*upd.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, *upd.Status)
		}
		updates["status"] = *upd.Status
	}
	if upd.Transcript != nil {
		raw, err := json.Marshal(upd.Transcript)
		if err != nil {
			return nil, fmt.Errorf("encode transcript: %w", err)
		}
		updates["transcript"] = datatypes.JSON(raw)
	}
	if upd.TranscriptSource != nil {
		updates["transcript_source"] = *upd.TranscriptSource
	}
	if upd.TranscriptDurationS != nil {
		updates["transcript_duration_s"] = *upd.TranscriptDurationS
	}
	if upd.TranscriptTS != nil {
		updates["transcript_ts"] = upd.TranscriptTS.UTC()
	}
	if upd.RunToken != nil {
		updates["run_token"] = *upd.RunToken
	}
	if upd.RunAttempts != nil {
		updates["run_attempts"] = *upd.RunAttempts
	}
	if upd.FailureReason != nil {
		updates["failure_reason"] = *upd.FailureReason
	}
	return updates, nil
}

func (s *gormStore) DeleteInterview(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND creator_id = ?", id, userID).Delete(&types.Interview{})
	if res.Error != nil {
		return fmt.Errorf("delete interview %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.log.WithField("interview_id", id.String()).Info("interview deleted")
	return nil
}
