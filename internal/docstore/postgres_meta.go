package docstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/collabdocs/trackd/internal/fileutil"
)

const (
	postgresMetaTable        = "trackd_file_meta"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresMetaBackend keeps file creation records in Postgres, for
// deployments where the storage tree lives on ephemeral disks.
type PostgresMetaBackend struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresMetaBackend(dsn string) (*PostgresMetaBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresMetaBackend{dsn: dsn, openDB: sql.Open}, nil
}

func (b *PostgresMetaBackend) ensureReady() error {
	b.initOnce.Do(func() {
		db, err := b.openDB("postgres", b.dsn)
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()
		_, err = db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS `+postgresMetaTable+` (
				address    TEXT NOT NULL,
				file_name  TEXT NOT NULL,
				created    TIMESTAMPTZ NOT NULL,
				user_id    TEXT NOT NULL,
				user_name  TEXT NOT NULL,
				PRIMARY KEY (address, file_name)
			)`)
		if err != nil {
			b.initErr = err
			_ = db.Close()
			return
		}
		b.db = db
	})
	return b.initErr
}

func (b *PostgresMetaBackend) Save(ctx context.Context, address, fileName string, meta FileMeta) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO `+postgresMetaTable+` (address, file_name, created, user_id, user_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address, file_name)
		DO UPDATE SET created = EXCLUDED.created, user_id = EXCLUDED.user_id, user_name = EXCLUDED.user_name`,
		SanitizeAddress(address), fileutil.FileName(fileName), meta.Created, meta.UserID, meta.UserName)
	return err
}

func (b *PostgresMetaBackend) Load(ctx context.Context, address, fileName string) (FileMeta, error) {
	if err := b.ensureReady(); err != nil {
		return FileMeta{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	var meta FileMeta
	err := b.db.QueryRowContext(ctx, `
		SELECT created, user_id, user_name FROM `+postgresMetaTable+`
		WHERE address = $1 AND file_name = $2`,
		SanitizeAddress(address), fileutil.FileName(fileName)).
		Scan(&meta.Created, &meta.UserID, &meta.UserName)
	if errors.Is(err, sql.ErrNoRows) {
		return FileMeta{}, ErrNotFound
	}
	if err != nil {
		return FileMeta{}, err
	}
	return meta, nil
}

func (b *PostgresMetaBackend) Rename(ctx context.Context, address, oldName, newName string) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	_, err := b.db.ExecContext(ctx, `
		UPDATE `+postgresMetaTable+` SET file_name = $3
		WHERE address = $1 AND file_name = $2`,
		SanitizeAddress(address), fileutil.FileName(oldName), fileutil.FileName(newName))
	return err
}

func (b *PostgresMetaBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
