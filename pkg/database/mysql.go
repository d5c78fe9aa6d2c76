package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/pkg/models"
)

// ChangeNotifier is told whenever a write touches the rooms table.
type ChangeNotifier interface {
	Notify(ctx context.Context, table string)
}

type MySQLDB struct {
	*gorm.DB
	rooms  *Repository[models.Room]
	tracks *Repository[models.Track]
	votes  *Repository[models.Vote]
}

func NewMySQLDB(host, port, user, password, dbname string, notifier ChangeNotifier) (*MySQLDB, error) {
	// clientFoundRows makes RowsAffected count matched rows, not changed ones.
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		user, password, host, port, dbname)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Auto-migrate the schema
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if notifier != nil {
		if err := registerRoomCallbacks(db, notifier); err != nil {
			return nil, fmt.Errorf("failed to register callbacks: %w", err)
		}
	}

	return New(db), nil
}

// New wraps an open connection.
func New(db *gorm.DB) *MySQLDB {
	return &MySQLDB{
		DB:     db,
		rooms:  NewRepository[models.Room](db),
		tracks: NewRepository[models.Track](db),
		votes:  NewRepository[models.Vote](db),
	}
}

func autoMigrate(db *gorm.DB) error {
	log.Info().Str("module", "database").Msg("running database migrations")

	return db.AutoMigrate(
		&models.Room{},
		&models.Track{},
		&models.Vote{},
	)
}

// registerRoomCallbacks publishes a change notification after every write
// to the rooms table so registries in all processes can resync.
func registerRoomCallbacks(db *gorm.DB, notifier ChangeNotifier) error {
	notify := func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement.Table != "rooms" {
			return
		}
		notifier.Notify(tx.Statement.Context, tx.Statement.Table)
	}

	cb := db.Callback()
	if err := cb.Create().After("gorm:create").Register("rooms:notify_create", notify); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("rooms:notify_update", notify); err != nil {
		return err
	}
	return cb.Delete().After("gorm:delete").Register("rooms:notify_delete", notify)
}

func (db *MySQLDB) tx(ctx context.Context, fn func(rooms *Repository[models.Room], tracks *Repository[models.Track], votes *Repository[models.Vote]) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(db.rooms.WithTx(tx), db.tracks.WithTx(tx), db.votes.WithTx(tx))
	})
}

// Room operations
func (db *MySQLDB) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	return db.rooms.Find(ctx, "pin", "access_token <> ?", "")
}

func (db *MySQLDB) GetRoom(ctx context.Context, pin string) (*models.Room, error) {
	room, err := db.rooms.First(ctx, "pin = ?", pin)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.NotFound("room %s not found", pin)
		}
		return nil, err
	}
	return room, nil
}

func (db *MySQLDB) FindRoomByOwner(ctx context.Context, ownerID string) (*models.Room, error) {
	room, err := db.rooms.First(ctx, "owner_id = ?", ownerID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.NotFound("no room owned by %s", ownerID)
		}
		return nil, err
	}
	return room, nil
}

func (db *MySQLDB) CreateRoom(ctx context.Context, room *models.Room, tracks []models.Track) error {
	return db.tx(ctx, func(rooms *Repository[models.Room], trackRepo *Repository[models.Track], _ *Repository[models.Vote]) error {
		if _, err := rooms.First(ctx, "pin = ?", room.Pin); err == nil {
			return errs.Conflict("room %s already exists", room.Pin)
		} else if !errs.IsNotFound(err) {
			return err
		}

		if err := rooms.Insert(ctx, room); err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}
		rows := make([]*models.Track, len(tracks))
		for i := range tracks {
			rows[i] = &tracks[i]
		}
		if err := trackRepo.Insert(ctx, rows...); err != nil {
			return fmt.Errorf("failed to insert tracks: %w", err)
		}
		return nil
	})
}

func (db *MySQLDB) SetCurrentIndex(ctx context.Context, pin string, currentIndex, lastPlayedIndex int) error {
	n, err := db.rooms.Update(ctx, map[string]any{
		"current_index":     currentIndex,
		"last_played_index": lastPlayedIndex,
	}, "pin = ?", pin)
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound("room %s not found", pin)
	}
	return nil
}

func (db *MySQLDB) SetTokensByOwner(ctx context.Context, ownerID, accessToken, refreshToken string) (int64, error) {
	values := map[string]any{"access_token": accessToken}
	if refreshToken != "" {
		values["refresh_token"] = refreshToken
	}
	return db.rooms.Update(ctx, values, "owner_id = ?", ownerID)
}

func (db *MySQLDB) ClearAccessToken(ctx context.Context, pin string) error {
	_, err := db.rooms.Update(ctx, map[string]any{"access_token": ""}, "pin = ?", pin)
	return err
}

func (db *MySQLDB) ListRoomsCreatedBefore(ctx context.Context, before time.Time) ([]models.Room, error) {
	return db.rooms.Find(ctx, "created_at", "created_at < ?", before)
}

// DeleteRooms removes the rooms and everything that belongs to them.
func (db *MySQLDB) DeleteRooms(ctx context.Context, pins ...string) error {
	if len(pins) == 0 {
		return nil
	}
	return db.tx(ctx, func(rooms *Repository[models.Room], tracks *Repository[models.Track], votes *Repository[models.Vote]) error {
		if _, err := votes.Delete(ctx, "pin IN ?", pins); err != nil {
			return err
		}
		if _, err := tracks.Delete(ctx, "pin IN ?", pins); err != nil {
			return err
		}
		_, err := rooms.Delete(ctx, "pin IN ?", pins)
		return err
	})
}

// Track operations
func (db *MySQLDB) ListTracks(ctx context.Context, pin string) ([]models.Track, error) {
	return db.tracks.Find(ctx, "position ASC", "pin = ?", pin)
}

func (db *MySQLDB) AppendTracks(ctx context.Context, pin string, tracks []models.Track) ([]models.Track, error) {
	var added []models.Track
	err := db.tx(ctx, func(rooms *Repository[models.Room], trackRepo *Repository[models.Track], _ *Repository[models.Vote]) error {
		if _, err := rooms.First(ctx, "pin = ?", pin); err != nil {
			if errs.IsNotFound(err) {
				return errs.NotFound("room %s not found", pin)
			}
			return err
		}

		existing, err := trackRepo.Find(ctx, "position ASC", "pin = ?", pin)
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(existing))
		next := 0
		for _, t := range existing {
			seen[t.ID] = true
			if t.Index >= next {
				next = t.Index + 1
			}
		}

		for _, t := range tracks {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			t.Pin = pin
			t.Index = next
			next++
			added = append(added, t)
		}
		rows := make([]*models.Track, len(added))
		for i := range added {
			rows[i] = &added[i]
		}
		return trackRepo.Insert(ctx, rows...)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (db *MySQLDB) SetTrackIndexes(ctx context.Context, pin string, indexes map[string]int) error {
	if len(indexes) == 0 {
		return nil
	}
	return db.tx(ctx, func(_ *Repository[models.Room], tracks *Repository[models.Track], _ *Repository[models.Vote]) error {
		for id, index := range indexes {
			if _, err := tracks.Update(ctx, map[string]any{"position": index}, "pin = ? AND id = ?", pin, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Vote operations
func (db *MySQLDB) ListVotes(ctx context.Context, pin string) ([]models.Vote, error) {
	return db.votes.Find(ctx, "created_at", "pin = ?", pin)
}

func (db *MySQLDB) UpsertVote(ctx context.Context, vote *models.Vote) error {
	return db.votes.Upsert(ctx, vote, []string{"pin", "voter_id", "track_id"}, []string{"state", "updated_at"})
}

func (db *MySQLDB) DeleteVote(ctx context.Context, pin, voterID, trackID string) error {
	_, err := db.votes.Delete(ctx, "pin = ? AND voter_id = ? AND track_id = ?", pin, voterID, trackID)
	return err
}

func (db *MySQLDB) DeleteVotesForTrack(ctx context.Context, pin, trackID string) (int64, error) {
	return db.votes.Delete(ctx, "pin = ? AND track_id = ?", pin, trackID)
}
