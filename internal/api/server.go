package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AgentMesh/internal/agent"
	xerrors "AgentMesh/internal/errors"
	"AgentMesh/internal/goal"
	"AgentMesh/internal/observability/metrics"
)

// Server 负责暴露 REST 接口，供外部提交目标并观察执行进度。
type Server struct {
	addr   string
	goals  *goal.Service
	agents *agent.Registry
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, goals *goal.Service, agents *agent.Registry) *Server {
	return &Server{addr: addr, goals: goals, agents: agents}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/goals", instrument("goals", s.handleGoals))
	mux.Handle("/api/v1/goals/stats", instrument("goal_stats", s.handleGoalStats))
	mux.Handle("/api/v1/goals/", instrument("goal_detail", s.handleGoalDetail))
	mux.Handle("/api/v1/agents", instrument("agents", s.handleAgents))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitGoal(w, r)
	case http.MethodGet:
		s.handleListGoals(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleSubmitGoal 处理提交目标的请求。
func (s *Server) handleSubmitGoal(w http.ResponseWriter, r *http.Request) {
	if s.goals == nil {
		http.Error(w, "目标服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req goal.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	g, err := s.goals.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleListGoals 按查询参数过滤目标列表。
func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	if s.goals == nil {
		http.Error(w, "目标服务未初始化", http.StatusServiceUnavailable)
		return
	}

	goals, err := s.goals.List(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

// handleGoalStats 返回目标统计信息。
func (s *Server) handleGoalStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.goals == nil {
		http.Error(w, "目标服务未初始化", http.StatusServiceUnavailable)
		return
	}

	stats, err := s.goals.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGoalDetail 按 ID 返回单个目标。
func (s *Server) handleGoalDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.goals == nil {
		http.Error(w, "目标服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/goals/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "目标 ID 不能为空", http.StatusBadRequest)
		return
	}

	g, err := s.goals.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleAgents 返回本地智能体的运行快照。
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.agents == nil {
		http.Error(w, "智能体注册表未初始化", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.agents.Snapshots())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listOptionsFromQuery 将 URL 查询参数转换为列表过滤选项。
func listOptionsFromQuery(r *http.Request) []goal.ListOption {
	query := r.URL.Query()
	var opts []goal.ListOption

	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, goal.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, goal.WithOffset(parsed))
		}
	}
	if values := query["status"]; len(values) > 0 {
		statuses := make([]goal.Status, 0, len(values))
		for _, value := range values {
			statuses = append(statuses, goal.Status(value))
		}
		opts = append(opts, goal.WithStatuses(statuses...))
	}
	if values := query["agent_type"]; len(values) > 0 {
		opts = append(opts, goal.WithAgentTypes(values...))
	}
	if raw := query.Get("has_report"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			opts = append(opts, goal.WithReportPresence(parsed))
		}
	}
	if query.Get("order") == "asc" {
		opts = append(opts, goal.WithSortOrder(goal.SortByUpdatedAsc))
	}
	if raw := query.Get("query"); raw != "" {
		opts = append(opts, goal.WithQuery(raw))
	}
	return opts
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case goal.CodeGoalNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case goal.CodeGoalValidation, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case goal.CodeGoalConflict, xerrors.CodeConflict:
		status = http.StatusConflict
	case xerrors.CodeInitializationFailure:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]errorBody{"error": {Code: string(code), Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 为处理器附加请求计数与耗时指标。
func instrument(name string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
