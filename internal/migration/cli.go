package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// =============================================================================
// 🖥️ evoflow migrate 的终端输出
// =============================================================================

// CLI 执行迁移并打印版本与追踪表状态
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a CLI writing to stdout.
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput 设置输出目标（测试与 cobra 的 OutOrStdout）
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// RunUp 应用迁移后打印追踪表概况
func (c *CLI) RunUp(ctx context.Context) error {
	fmt.Fprintln(c.output, "Applying tracker migrations...")
	if err := c.migrator.Up(ctx); err != nil {
		return err
	}
	return c.summary(ctx, "Tracker schema ready")
}

// RunDown 回滚最后一个迁移
func (c *CLI) RunDown(ctx context.Context) error {
	fmt.Fprintln(c.output, "Rolling back the last tracker migration...")
	if err := c.migrator.Down(ctx); err != nil {
		return err
	}
	return c.summary(ctx, "Rollback complete")
}

// RunDownAll 回滚全部迁移，追踪表及运行记录一并删除
func (c *CLI) RunDownAll(ctx context.Context) error {
	fmt.Fprintln(c.output, "Dropping all tracker tables...")
	if err := c.migrator.DownAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.output, "All tracker migrations rolled back; run history is gone.")
	return nil
}

// RunGoto 迁移到指定版本
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	fmt.Fprintf(c.output, "Migrating tracker schema to version %d...\n", version)
	if err := c.migrator.Goto(ctx, version); err != nil {
		return err
	}
	return c.summary(ctx, "Migration complete")
}

// RunForce 改写版本号，用于修复 dirty 状态
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Tracker schema version forced to %d; no SQL was executed.\n", version)
	return nil
}

// RunVersion 打印当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Fprintln(c.output, "No migrations applied yet.")
		return nil
	}
	fmt.Fprintf(c.output, "Current version: %d%s\n", version, dirtySuffix(dirty))
	return nil
}

// RunStatus 打印每个迁移的状态，随后是追踪表
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.output)
	return c.printTables(info)
}

// RunInfo 打印版本概况与追踪表
func (c *CLI) RunInfo(ctx context.Context) error {
	return c.summary(ctx, "Tracker schema")
}

func (c *CLI) summary(ctx context.Context, title string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}

	state := "ready"
	if !info.Ready() {
		state = "incomplete"
	}
	fmt.Fprintf(c.output, "%s (%s)\n", title, state)
	fmt.Fprintf(c.output, "  version:    %d%s\n", info.CurrentVersion, dirtySuffix(info.Dirty))
	fmt.Fprintf(c.output, "  migrations: %d applied, %d pending\n", info.AppliedMigrations, info.PendingMigrations)
	fmt.Fprintln(c.output)
	return c.printTables(info)
}

func (c *CLI) printTables(info *MigrationInfo) error {
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS")
	for _, t := range info.Tables {
		rows := "missing"
		if t.Present {
			rows = fmt.Sprintf("%d", t.Rows)
		}
		fmt.Fprintf(w, "%s\t%s\n", t.Name, rows)
	}
	return w.Flush()
}

func dirtySuffix(dirty bool) string {
	if dirty {
		return " (dirty)"
	}
	return ""
}
