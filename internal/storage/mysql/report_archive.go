package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ReportRecord 表示一次目标执行汇总的落库结构。
type ReportRecord struct {
	ID             int64  `json:"id,omitempty"`
	GoalID         string `json:"goal_id"`
	AgentType      string `json:"agent_type,omitempty"`
	Description    string `json:"description"`
	Success        bool   `json:"success"`
	StepsTotal     int    `json:"steps_total"`
	StepsCompleted int    `json:"steps_completed"`
	StepsFailed    int    `json:"steps_failed"`
	ExecutionOrder string `json:"execution_order,omitempty"`
	Summary        string `json:"summary,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// ReportArchive 抽象执行汇总的持久化接口。
type ReportArchive interface {
	Save(ctx context.Context, record ReportRecord) error
	ListLatest(ctx context.Context, limit int) ([]ReportRecord, error)
	Close() error
}

// FileReportArchive 使用本地 JSON 文件模拟 MySQL 的效果，方便迭代开发。
type FileReportArchive struct {
	mu       sync.RWMutex
	dataFile string
	records  []ReportRecord
}

// NewFileReportArchive 创建一个文件归档仓库。
func NewFileReportArchive(dataDir string) (*FileReportArchive, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "reports.log")
	archive := &FileReportArchive{dataFile: path}
	if err := archive.loadFromDisk(); err != nil {
		return nil, err
	}
	return archive, nil
}

// Save 以追加写的方式记录执行汇总。
func (m *FileReportArchive) Save(_ context.Context, record ReportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开归档日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化归档记录失败: %w", err)
	}

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入归档日志失败: %w", err)
	}

	m.records = append([]ReportRecord{record}, m.records...)
	if len(m.records) > 512 {
		m.records = m.records[:512]
	}
	return nil
}

// ListLatest 返回最近的归档记录，按时间倒序排列。
func (m *FileReportArchive) ListLatest(_ context.Context, limit int) ([]ReportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	results := make([]ReportRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// Close 对文件归档无需操作。
func (m *FileReportArchive) Close() error {
	return nil
}

func (m *FileReportArchive) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取归档日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []ReportRecord
	for scanner.Scan() {
		var record ReportRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]ReportRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析归档日志失败: %w", err)
	}

	if len(restored) > 512 {
		restored = restored[:512]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

// SQLReportArchive 使用真实的 MySQL 数据库存储执行汇总。
type SQLReportArchive struct {
	db *sql.DB
}

// NewSQLReportArchive 创建连接池并应用迁移。
func NewSQLReportArchive(ctx context.Context, dsn string) (*SQLReportArchive, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	archive := &SQLReportArchive{db: db}
	if err := archive.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return archive, nil
}

// Save 将执行汇总写入 MySQL。
func (s *SQLReportArchive) Save(ctx context.Context, record ReportRecord) error {
	const stmt = `INSERT INTO goal_reports
        (goal_id, agent_type, description, success, steps_total, steps_completed, steps_failed, execution_order, summary, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	success := 0
	if record.Success {
		success = 1
	}
	if _, err := s.db.ExecContext(ctx, stmt,
		record.GoalID,
		record.AgentType,
		record.Description,
		success,
		record.StepsTotal,
		record.StepsCompleted,
		record.StepsFailed,
		record.ExecutionOrder,
		record.Summary,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条归档记录。
func (s *SQLReportArchive) ListLatest(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, goal_id, agent_type, description, success, steps_total, steps_completed, steps_failed, execution_order, summary, created_at
        FROM goal_reports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询归档记录失败: %w", err)
	}
	defer rows.Close()

	var records []ReportRecord
	for rows.Next() {
		var record ReportRecord
		var success int
		if err := rows.Scan(&record.ID, &record.GoalID, &record.AgentType, &record.Description, &success, &record.StepsTotal, &record.StepsCompleted, &record.StepsFailed, &record.ExecutionOrder, &record.Summary, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析归档记录失败: %w", err)
		}
		record.Success = success != 0
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历归档记录失败: %w", err)
	}

	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLReportArchive) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ ReportArchive = (*FileReportArchive)(nil)
	_ ReportArchive = (*SQLReportArchive)(nil)
)
