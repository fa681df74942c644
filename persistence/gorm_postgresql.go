// persistence/gorm_postgresql.go
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/wfunc/duelarena/config"
	"github.com/wfunc/duelarena/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 在 lib/pq 连接池之上打开 GORM
func NewGormPostgreSQL(cfg config.PostgresConfig) (*GormPostgreSQL, error) {
	sqlDB, err := OpenPostgreSQL(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewGormPostgreSQLFromDB(sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewGormPostgreSQLFromDB wraps an existing connection pool and migrates the
// schema.
func NewGormPostgreSQLFromDB(sqlDB *sql.DB) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Player{},
		&models.DuelRecord{},
		&models.TournamentRecord{},
	)
}

func ensurePlayer(tx *gorm.DB, participantID string) error {
	player := models.Player{
		ParticipantID: participantID,
		Rating:        models.DefaultRating,
		Coins:         models.DefaultCoins,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant_id"}},
		DoNothing: true,
	}).Create(&player).Error
}

// lockPlayer 读取玩家并加行锁，不存在时先创建
func lockPlayer(tx *gorm.DB, participantID string) (*models.Player, error) {
	if err := ensurePlayer(tx, participantID); err != nil {
		return nil, err
	}
	var player models.Player
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("participant_id = ?", participantID).
		First(&player).Error
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func (p *GormPostgreSQL) EnsurePlayer(participantID string) error {
	return ensurePlayer(p.db, participantID)
}

func (p *GormPostgreSQL) GetPlayer(participantID string) (*models.Player, error) {
	var player models.Player
	if err := p.db.Where("participant_id = ?", participantID).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &player, nil
}

// GetPlayerStats 汇总玩家数据
func (p *GormPostgreSQL) GetPlayerStats(participantID string) (*models.PlayerStats, error) {
	player, err := p.GetPlayer(participantID)
	if err != nil {
		return nil, err
	}
	return &models.PlayerStats{
		ParticipantID: player.ParticipantID,
		Rating:        player.Rating,
		Coins:         player.Coins,
		Duels:         player.Wins + player.Losses + player.Draws,
		Wins:          player.Wins,
		Losses:        player.Losses,
		Draws:         player.Draws,
		Tournaments:   player.Tournaments,
		Championships: player.Championships,
	}, nil
}

// AdjustCoins 原子地增减金币
func (p *GormPostgreSQL) AdjustCoins(participantID string, delta int64) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		player, err := lockPlayer(tx, participantID)
		if err != nil {
			return err
		}
		if delta < 0 && player.Coins+delta < 0 {
			return ErrInsufficientCoins
		}
		return tx.Model(player).Update("coins", gorm.Expr("coins + ?", delta)).Error
	})
}

// TransferCoins 在一个事务内转账，余额不足时不做任何修改
func (p *GormPostgreSQL) TransferCoins(from, to string, amount int64) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		payer, err := lockPlayer(tx, from)
		if err != nil {
			return err
		}
		payee, err := lockPlayer(tx, to)
		if err != nil {
			return err
		}
		if payer.Coins < amount {
			return ErrInsufficientCoins
		}
		if err := tx.Model(payer).Update("coins", gorm.Expr("coins - ?", amount)).Error; err != nil {
			return err
		}
		return tx.Model(payee).Update("coins", gorm.Expr("coins + ?", amount)).Error
	})
}

func (p *GormPostgreSQL) UpdateRatings(winner, loser string, update func(winnerRating, loserRating int) (int, int)) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		w, err := lockPlayer(tx, winner)
		if err != nil {
			return err
		}
		l, err := lockPlayer(tx, loser)
		if err != nil {
			return err
		}
		wr, lr := update(w.Rating, l.Rating)
		if err := tx.Model(w).Update("rating", wr).Error; err != nil {
			return err
		}
		return tx.Model(l).Update("rating", lr).Error
	})
}

// SaveDuelRecord 保存决斗记录并更新胜负统计
func (p *GormPostgreSQL) SaveDuelRecord(record *models.DuelRecord) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		for _, id := range []string{record.Challenger, record.Target} {
			if err := ensurePlayer(tx, id); err != nil {
				return err
			}
		}
		players := tx.Model(&models.Player{})
		if record.Winner == "" {
			return players.Where("participant_id IN ?", []string{record.Challenger, record.Target}).
				Update("draws", gorm.Expr("draws + 1")).Error
		}
		if err := tx.Model(&models.Player{}).Where("participant_id = ?", record.Winner).
			Update("wins", gorm.Expr("wins + 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.Player{}).Where("participant_id = ?", record.Loser).
			Update("losses", gorm.Expr("losses + 1")).Error
	})
}

// SaveTournamentRecord 归档锦标赛并更新参赛统计
func (p *GormPostgreSQL) SaveTournamentRecord(record *models.TournamentRecord) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error; err != nil {
			return err
		}
		if len(record.Participants) > 0 {
			if err := tx.Model(&models.Player{}).Where("participant_id IN ?", record.Participants).
				Update("tournaments", gorm.Expr("tournaments + 1")).Error; err != nil {
				return err
			}
		}
		if record.Winner == "" {
			return nil
		}
		return tx.Model(&models.Player{}).Where("participant_id = ?", record.Winner).
			Update("championships", gorm.Expr("championships + 1")).Error
	})
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// 添加事务支持
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}
