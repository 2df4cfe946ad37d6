/*
包 migration 管理追踪数据库（evolution_runs、generations、workflows、
workflow_versions、workflow_invocations）的 Schema 迁移，支持
PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌。SQLite 使用纯 Go 的
glebarez 驱动打开连接，再交给 golang-migrate 的 sqlite3 迁移驱动，
因此迁移与追踪器共用同一个 DSN，无需 CGO。

# 核心接口与类型

  - Migrator：Up/Down/DownAll/Goto/Force/Version/Status/Info/Close；
    Schema 处于 dirty 状态时 Up 返回 ErrDirty。
  - MigrationInfo.Tables：每张追踪表是否存在及行数，表名取自 tracker 模型。
  - DefaultMigrator：封装 golang-migrate 实例与数据库连接。
  - CLI：evoflow migrate 子命令的终端输出，status/info 附带追踪表概况。
  - NewMigratorFromDatabaseConfig：从追踪器的 database.Config 创建迁移器，
    MySQL DSN 会自动补上 multiStatements。
*/
package migration
