package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AgentMesh/sdk/go/agentmesh"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/goals", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(agentmesh.Goal{
				ID:          "goal-demo",
				Description: "采集主机指标并生成巡检报告",
				Status:      "pending",
				CreatedAt:   time.Now().Unix(),
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/goals/goal-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agentmesh.Goal{
			ID:     "goal-demo",
			Status: "succeeded",
			Report: &agentmesh.RunReport{
				Success:        true,
				StepsTotal:     3,
				StepsCompleted: 3,
				ExecutionOrder: []string{"collect", "analyze", "report"},
				Summary:        "巡检完成，无异常",
			},
			UpdatedAt: time.Now().Unix(),
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := agentmesh.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.SubmitGoal(ctx, agentmesh.GoalSubmission{
		Description: "采集主机指标并生成巡检报告",
		AgentType:   "monitoring",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted goal %s (status=%s)\n", created.ID, created.Status)

	finished, err := client.WaitForGoal(ctx, created.ID, 200*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("goal %s finished (success=%v, steps=%d)\n", finished.ID, finished.Report.Success, finished.Report.StepsTotal)
}
