package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm/schema"

	"github.com/BaSui01/evoflow/tracker"

	// 纯 Go 的 sqlite 驱动，注册为 "sqlite"；sqlite3 迁移驱动只使用其 *sql.DB 实例
	_ "github.com/glebarez/go-sqlite"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// DatabaseType 追踪数据库方言
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// ParseDatabaseType 解析驱动名，接受常见别名
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// =============================================================================
// 📋 状态类型
// =============================================================================

// MigrationStatus 单个迁移文件的状态
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// TableStatus 追踪表是否存在及其行数
type TableStatus struct {
	Name    string
	Present bool
	Rows    int64
}

// MigrationInfo 当前 Schema 概况
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
	// Tables 按追踪器模型顺序列出运行、代、工作流、版本与调用表
	Tables []TableStatus
}

// Ready 所有追踪表都已创建且没有中断的迁移
func (i *MigrationInfo) Ready() bool {
	if i.Dirty || i.PendingMigrations > 0 {
		return false
	}
	for _, t := range i.Tables {
		if !t.Present {
			return false
		}
	}
	return true
}

// TrackerTables 追踪器使用的表名，与 GORM 模型保持一致
func TrackerTables() []string {
	models := tracker.AllModels()
	names := make([]string, 0, len(models))
	for _, m := range models {
		if t, ok := m.(schema.Tabler); ok {
			names = append(names, t.TableName())
		}
	}
	return names
}

// =============================================================================
// 🗄️ 迁移器
// =============================================================================

// Config 迁移器配置
type Config struct {
	DatabaseType DatabaseType
	// DatabaseURL 与追踪器相同的 DSN；MySQL 需要 multiStatements，见 MigrationURL
	DatabaseURL string
	// TableName 版本表，默认 schema_migrations
	TableName string
	// LockTimeout 连接探测与 postgres 语句超时，默认 15s
	LockTimeout time.Duration
}

// Migrator 追踪数据库 Schema 迁移
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	DownAll(ctx context.Context) error
	Goto(ctx context.Context, version uint) error
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	Close() error
}

// ErrDirty 上一次迁移中途失败，需要人工修复后 force
var ErrDirty = errors.New("tracker schema is dirty")

// DefaultMigrator 基于 golang-migrate 与内嵌 SQL 的实现
type DefaultMigrator struct {
	config  *Config
	migrate *migrate.Migrate
	db      *sql.DB
}

// NewMigrator opens the database and prepares the embedded migrations.
func NewMigrator(cfg *Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 15 * time.Second
	}

	m := &DefaultMigrator{config: cfg}
	if err := m.init(); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	return m, nil
}

func (m *DefaultMigrator) init() error {
	fsys, path, err := migrationFiles(m.config.DatabaseType)
	if err != nil {
		return err
	}

	if m.db, err = m.openDatabase(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	driver, err := m.databaseDriver()
	if err != nil {
		m.db.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	source, err := iofs.New(fsys, path)
	if err != nil {
		m.db.Close()
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	m.migrate, err = migrate.NewWithInstance("iofs", source, string(m.config.DatabaseType), driver)
	if err != nil {
		m.db.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) openDatabase() (*sql.DB, error) {
	driverName := string(m.config.DatabaseType)
	db, err := sql.Open(driverName, m.config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.LockTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (m *DefaultMigrator) databaseDriver() (database.Driver, error) {
	switch m.config.DatabaseType {
	case DatabaseTypePostgres:
		return postgres.WithInstance(m.db, &postgres.Config{
			MigrationsTable:  m.config.TableName,
			StatementTimeout: m.config.LockTimeout,
		})
	case DatabaseTypeMySQL:
		return mysql.WithInstance(m.db, &mysql.Config{MigrationsTable: m.config.TableName})
	case DatabaseTypeSQLite:
		return sqlite3.WithInstance(m.db, &sqlite3.Config{MigrationsTable: m.config.TableName})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.config.DatabaseType)
	}
}

func migrationFiles(dbType DatabaseType) (fs.FS, string, error) {
	switch dbType {
	case DatabaseTypePostgres:
		return postgresFS, "migrations/postgres", nil
	case DatabaseTypeMySQL:
		return mysqlFS, "migrations/mysql", nil
	case DatabaseTypeSQLite:
		return sqliteFS, "migrations/sqlite", nil
	default:
		return nil, "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// Up 应用全部待执行迁移。Schema 处于 dirty 状态时拒绝执行。
func (m *DefaultMigrator) Up(ctx context.Context) error {
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("%w at version %d: repair the tables, then force the version", ErrDirty, version)
	}
	return ignoreNoChange(m.migrate.Up(), "up")
}

// Down 回滚最后一个迁移
func (m *DefaultMigrator) Down(ctx context.Context) error {
	return ignoreNoChange(m.migrate.Steps(-1), "down")
}

// DownAll 回滚全部迁移，会删除所有运行记录
func (m *DefaultMigrator) DownAll(ctx context.Context) error {
	return ignoreNoChange(m.migrate.Down(), "down all")
}

// Goto 迁移到指定版本
func (m *DefaultMigrator) Goto(ctx context.Context, version uint) error {
	return ignoreNoChange(m.migrate.Migrate(version), "goto")
}

// Force 只改写版本号并清除 dirty 标记，不执行 SQL
func (m *DefaultMigrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

func ignoreNoChange(err error, op string) error {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", op, err)
	}
	return nil
}

// Version 返回当前版本；尚未迁移时为 0
func (m *DefaultMigrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status 列出每个内嵌迁移是否已应用
func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, MigrationStatus{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return statuses, nil
}

// Info 汇总版本信息与追踪表状态
func (m *DefaultMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	info := &MigrationInfo{CurrentVersion: current, Dirty: dirty, TotalMigrations: len(statuses)}
	for _, s := range statuses {
		if s.Applied {
			info.AppliedMigrations++
		}
	}
	info.PendingMigrations = info.TotalMigrations - info.AppliedMigrations

	if info.Tables, err = m.tables(ctx); err != nil {
		return nil, err
	}
	return info, nil
}

// tables 检查每张追踪表是否存在，存在时统计行数
func (m *DefaultMigrator) tables(ctx context.Context) ([]TableStatus, error) {
	var exists string
	switch m.config.DatabaseType {
	case DatabaseTypePostgres:
		exists = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	case DatabaseTypeMySQL:
		exists = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	default:
		exists = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}

	names := TrackerTables()
	out := make([]TableStatus, 0, len(names))
	for _, name := range names {
		status := TableStatus{Name: name}
		var n int
		if err := m.db.QueryRowContext(ctx, exists, name).Scan(&n); err != nil {
			return nil, fmt.Errorf("inspect table %s: %w", name, err)
		}
		if n > 0 {
			status.Present = true
			// 表名来自模型定义，不含外部输入
			if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&status.Rows); err != nil {
				return nil, fmt.Errorf("count rows in %s: %w", name, err)
			}
		}
		out = append(out, status)
	}
	return out, nil
}

// Close 关闭迁移源与数据库连接
func (m *DefaultMigrator) Close() error {
	if m.migrate == nil {
		return nil
	}
	sourceErr, dbErr := m.migrate.Close()
	if err := errors.Join(sourceErr, dbErr); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	return nil
}

type migrationFile struct {
	version uint
	name    string
}

// availableMigrations 按版本顺序列出内嵌的 up 迁移，文件名形如 000001_create_runs.up.sql
func availableMigrations(dbType DatabaseType) ([]migrationFile, error) {
	fsys, path, err := migrationFiles(dbType)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if entry.IsDir() || !ok {
			continue
		}
		prefix, label, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{version: uint(version), name: label})
	}

	slices.SortFunc(files, func(a, b migrationFile) int { return int(a.version) - int(b.version) })
	return slices.CompactFunc(files, func(a, b migrationFile) bool { return a.version == b.version }), nil
}
