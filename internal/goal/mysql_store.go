package goal

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "AgentMesh/internal/errors"
)

// MySQLStore 使用 MySQL 记录目标状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS goal_states (
        id VARCHAR(64) PRIMARY KEY,
        description TEXT NOT NULL,
        source VARCHAR(255) DEFAULT '',
        agent_type VARCHAR(64) DEFAULT '',
        priority INT NOT NULL DEFAULT 5,
        tags TEXT,
        metadata TEXT,
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        report_success TINYINT NOT NULL DEFAULT 0,
        report_steps_total INT NOT NULL DEFAULT 0,
        report_steps_completed INT NOT NULL DEFAULT 0,
        report_steps_failed INT NOT NULL DEFAULT 0,
        report_order TEXT,
        report_summary TEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_goal_status (status),
        INDEX idx_goal_agent_type (agent_type),
        INDEX idx_goal_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 goal_states 表失败")
	}
	if _, err := s.db.Exec(`ALTER TABLE goal_states ADD COLUMN agent_type VARCHAR(64) DEFAULT '' AFTER source`); err != nil {
		var mysqlErr *mysql.MySQLError
		if !(stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1060) {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "扩展 goal_states.agent_type 失败")
		}
	}
	if _, err := s.db.Exec(`ALTER TABLE goal_states ADD COLUMN tags TEXT AFTER priority`); err != nil {
		var mysqlErr *mysql.MySQLError
		if !(stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1060) {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "扩展 goal_states.tags 失败")
		}
	}
	return nil
}

// Create 插入新的目标记录。
func (s *MySQLStore) Create(ctx context.Context, g *Goal) error {
	if g == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "goal 不能为空")
	}
	if strings.TrimSpace(g.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "目标 ID 不能为空")
	}

	now := time.Now().Unix()
	g.CreatedAt = now
	g.UpdatedAt = now

	metadataValue, err := marshalMetadata(g.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码目标 metadata 失败")
	}
	tagsValue, err := marshalStrings(g.Tags)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码目标 tags 失败")
	}

	const stmt = `INSERT INTO goal_states
        (id, description, source, agent_type, priority, tags, metadata, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		g.ID,
		g.Description,
		g.Source,
		g.AgentType,
		g.Priority,
		tagsValue,
		metadataValue,
		g.Status,
		g.Attempts,
		g.MaxRetries,
		g.CreatedAt,
		g.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrGoalConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入目标失败")
	}
	return nil
}

const goalColumns = `id, description, source, agent_type, priority, tags, metadata, status, attempts, max_retries, last_error, error_code,
        report_success, report_steps_total, report_steps_completed, report_steps_failed, report_order, report_summary, created_at, updated_at`

// Get 查询指定目标。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Goal, error) {
	stmt := `SELECT ` + goalColumns + ` FROM goal_states WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	g, err := scanGoal(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrGoalNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询目标失败")
	}
	return g, nil
}

// Claim 将目标标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Goal, error) {
	const updateStmt = `UPDATE goal_states SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新目标状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		g, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch g.Status {
		case StatusSucceeded:
			return g, ErrGoalCompleted
		case StatusRunning:
			return g, ErrGoalConflict
		default:
			if g.Attempts >= g.MaxRetries {
				return g, ErrGoalExhausted
			}
			return g, ErrGoalConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 将目标标记为成功。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, report RunReport) error {
	const stmt = `UPDATE goal_states SET status = ?, report_success = ?, report_steps_total = ?, report_steps_completed = ?,
        report_steps_failed = ?, report_order = ?, report_summary = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	orderValue, err := marshalStrings(report.ExecutionOrder)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码执行顺序失败")
	}

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusSucceeded,
		boolToInt(report.Success),
		report.StepsTotal,
		report.StepsCompleted,
		report.StepsFailed,
		orderValue,
		report.Summary,
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记目标成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrGoalNotFound
	}
	return nil
}

// MarkFailed 将目标标记为失败，并在必要时终止重试。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	const stmt = `UPDATE goal_states SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusFailed,
		lastError,
		string(code),
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记目标失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrGoalNotFound
	}
	return nil
}

// List 返回符合过滤条件的目标。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Goal, error) {
	opts.applyDefaults()

	query := `SELECT ` + goalColumns + ` FROM goal_states`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询目标列表失败")
	}
	defer rows.Close()

	goals := make([]*Goal, 0, opts.Limit)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析目标记录失败")
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历目标失败")
	}
	return goals, nil
}

// Stats 返回符合过滤条件的目标聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (GoalStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS succeeded,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM goal_states`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats GoalStats
	if err := row.Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return GoalStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询目标统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*Goal, error) {
	var g Goal
	var report RunReport
	var reportSuccess int
	var tags, metadata, order sql.NullString

	if err := row.Scan(
		&g.ID,
		&g.Description,
		&g.Source,
		&g.AgentType,
		&g.Priority,
		&tags,
		&metadata,
		&g.Status,
		&g.Attempts,
		&g.MaxRetries,
		&g.LastError,
		&g.ErrorCode,
		&reportSuccess,
		&report.StepsTotal,
		&report.StepsCompleted,
		&report.StepsFailed,
		&order,
		&report.Summary,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		return nil, err
	}

	decodedMetadata, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	g.Metadata = decodedMetadata

	decodedTags, err := unmarshalStrings(tags)
	if err != nil {
		return nil, err
	}
	g.Tags = decodedTags

	report.Success = reportSuccess != 0
	decodedOrder, err := unmarshalStrings(order)
	if err != nil {
		return nil, err
	}
	report.ExecutionOrder = decodedOrder
	if reportPresent(&report) {
		g.Report = &report
	}
	return &g, nil
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func marshalStrings(values []string) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalStrings(raw sql.NullString) ([]string, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 8)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if len(opts.AgentTypes) > 0 {
		placeholders := make([]string, 0, len(opts.AgentTypes))
		for range opts.AgentTypes {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("agent_type IN (%s)", strings.Join(placeholders, ",")))
		for _, agentType := range opts.AgentTypes {
			args = append(args, agentType)
		}
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasReport != nil {
		if *opts.HasReport {
			conditions = append(conditions, "(report_success = 1 OR report_steps_total > 0 OR (report_summary IS NOT NULL AND report_summary <> ''))")
		} else {
			conditions = append(conditions, "(report_success = 0 AND report_steps_total = 0 AND (report_summary IS NULL OR report_summary = ''))")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR description LIKE ? OR source LIKE ? OR agent_type LIKE ? OR tags LIKE ? OR metadata LIKE ? OR last_error LIKE ? OR report_summary LIKE ?)")
		args = append(args,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
		)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
