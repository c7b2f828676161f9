// Package database は各サービスで共有するデータベース接続の初期化処理を提供する。
//
// 接続先はDATABASE_URLで指定する。postgres:// で始まるURLはpgxドライバ、
// それ以外はSQLite（modernc.org/sqlite）として開く。
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrMissingURL はDATABASE_URLが設定されていない場合のエラー。
var ErrMissingURL = errors.New("DATABASE_URL is required to initialize the database")

// defaultAcquireTimeout は起動時の疎通確認に使うタイムアウト。
const defaultAcquireTimeout = 10 * time.Second

// PoolOptions はコネクションプールの設定。0は未指定を表す。
type PoolOptions struct {
	// Max は最大オープン接続数。
	Max int
	// Min はアイドル状態で保持する接続数。
	Min int
	// Idle はアイドル接続を閉じるまでの時間。
	Idle time.Duration
	// Acquire は起動時に接続を確立するまでの待ち時間。
	Acquire time.Duration
}

// Options はデータベース接続の設定。
type Options struct {
	// URL は接続先URLまたはDSN。
	URL string
	// Logging は接続処理のログを出力するかどうか。
	Logging bool
	// Pool はコネクションプールの設定。
	Pool PoolOptions
}

// LoadOptions は環境変数から接続設定を読み込む。
func LoadOptions(getenv func(string) string) (Options, error) {
	opts := Options{
		URL:     getenv("DATABASE_URL"),
		Logging: getenv("DB_LOGGING") == "true",
	}
	if opts.URL == "" {
		return Options{}, ErrMissingURL
	}

	var err error
	if opts.Pool.Max, err = intEnv(getenv, "DB_POOL_MAX"); err != nil {
		return Options{}, err
	}
	if opts.Pool.Min, err = intEnv(getenv, "DB_POOL_MIN"); err != nil {
		return Options{}, err
	}
	idle, err := intEnv(getenv, "DB_POOL_IDLE")
	if err != nil {
		return Options{}, err
	}
	opts.Pool.Idle = time.Duration(idle) * time.Millisecond
	acquire, err := intEnv(getenv, "DB_POOL_ACQUIRE")
	if err != nil {
		return Options{}, err
	}
	opts.Pool.Acquire = time.Duration(acquire) * time.Millisecond

	return opts, nil
}

func intEnv(getenv func(string) string, key string) (int, error) {
	v := getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%sの値が不正です: %q", key, v)
	}
	return n, nil
}

// DriverName はURLから使用するドライバ名を判定する。
func DriverName(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

// Open はデータベースに接続し、プール設定を適用して疎通を確認する。
func Open(ctx context.Context, opts Options, logger logrus.FieldLogger) (*sql.DB, error) {
	if opts.URL == "" {
		return nil, ErrMissingURL
	}

	driver := DriverName(opts.URL)
	dsn := opts.URL
	if driver == "sqlite" {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if opts.Pool.Max > 0 {
		db.SetMaxOpenConns(opts.Pool.Max)
	}
	if opts.Pool.Min > 0 {
		db.SetMaxIdleConns(opts.Pool.Min)
	}
	if opts.Pool.Idle > 0 {
		db.SetConnMaxIdleTime(opts.Pool.Idle)
	}

	acquire := opts.Pool.Acquire
	if acquire <= 0 {
		acquire = defaultAcquireTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, acquire)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースの疎通確認に失敗: %w", err)
	}

	if opts.Logging {
		logger.WithFields(logrus.Fields{
			"driver":   driver,
			"max_open": opts.Pool.Max,
			"min_idle": opts.Pool.Min,
		}).Info("データベースに接続しました")
	}
	return db, nil
}
