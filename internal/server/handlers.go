package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/content-swarm/internal/types"
)

// createTaskRequest is the body of POST /tasks
type createTaskRequest struct {
	Org    string           `json:"org"`
	Config types.TaskConfig `json:"config"`
}

// cancelTaskRequest is the optional body of POST /tasks/{id}/cancel
type cancelTaskRequest struct {
	Reason string `json:"reason"`
}

// runningResponse reports in-flight counts and remaining budget per class
type runningResponse struct {
	Local  int            `json:"local"`
	Cloud  int            `json:"cloud"`
	Budget map[string]int `json:"budget"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.handleError(w, err)
		return
	}
	tasks, err := s.svc.ListTasks(r.Context(), r.URL.Query().Get("org"), limit)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleError(w, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	if req.Org == "" {
		s.handleError(w, &ErrValidation{Field: "org", Message: "required"})
		return
	}
	task, err := s.svc.CreateTask(r.Context(), req.Org, req.Config)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	task, err := s.svc.GetTask(r.Context(), taskID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req cancelTaskRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.handleError(w, &ErrValidation{Field: "body", Message: err.Error()})
			return
		}
	}
	summary, err := s.svc.CancelTask(r.Context(), taskID, req.Reason)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, summary)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	progress, err := s.svc.TaskProgress(r.Context(), taskID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, progress)
}

func (s *Server) handleNextStep(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	sched := s.svc.Scheduler()
	step, err := sched.NextReadyStep(r.Context(), taskID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	pending, err := sched.HasPendingSteps(r.Context(), taskID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"step": step, "has_pending": pending})
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	th := s.svc.Throttle()
	counts, err := th.RunningCounts(r.Context(), taskID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	resp := runningResponse{Local: counts.Local, Cloud: counts.Cloud, Budget: map[string]int{}}
	for _, class := range types.ResourceClasses {
		budget, err := th.Budget(r.Context(), taskID, class)
		if err != nil {
			s.handleError(w, err)
			return
		}
		resp.Budget[string(class)] = budget
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleNextOutputs(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	class, err := types.ParseResourceClass(r.URL.Query().Get("class"))
	if err != nil {
		s.handleError(w, &ErrValidation{Field: "class", Message: err.Error()})
		return
	}

	th := s.svc.Throttle()
	var limit int
	if r.URL.Query().Get("limit") != "" {
		if limit, err = queryInt(r, "limit", 0); err != nil {
			s.handleError(w, err)
			return
		}
	} else if limit, err = th.Budget(r.Context(), taskID, class); err != nil {
		s.handleError(w, err)
		return
	}

	ids, err := th.NextOutputsToProcess(r.Context(), taskID, class, limit)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"class": class, "output_ids": ids})
}

func (s *Server) handleOutputVersions(w http.ResponseWriter, r *http.Request) {
	outputID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	versions, err := s.svc.Throttle().Versions(r.Context(), outputID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if versions == nil {
		versions = []types.OutputVersion{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	outputs, err := s.svc.Ranking().Standings(r.Context(), taskID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if outputs == nil {
		outputs = []types.Output{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"outputs": outputs})
}

func (s *Server) handleInitialRankings(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	rankings, err := s.svc.Ranking().CalculateInitialRankings(r.Context(), taskID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if rankings == nil {
		rankings = []types.InitialRanking{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"rankings": rankings})
}

func (s *Server) handleSelectFinalists(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	engine := s.svc.Ranking()

	var (
		finalists []uuid.UUID
		err       error
	)
	if r.URL.Query().Get("top_n") != "" {
		topN, qerr := queryInt(r, "top_n", 0)
		if qerr != nil {
			s.handleError(w, qerr)
			return
		}
		finalists, err = engine.SelectFinalists(r.Context(), taskID, topN)
	} else {
		finalists, err = engine.SelectConfiguredFinalists(r.Context(), taskID)
	}
	if err != nil {
		s.handleError(w, err)
		return
	}
	if finalists == nil {
		finalists = []uuid.UUID{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"finalists": finalists})
}

func (s *Server) handleFinalRankings(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	rankings, err := s.svc.Ranking().CalculateFinalRankings(r.Context(), taskID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if rankings == nil {
		rankings = []types.FinalRanking{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"rankings": rankings})
}

func (s *Server) handleDeliverables(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	outputs, err := s.svc.Ranking().Deliverables(r.Context(), taskID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if outputs == nil {
		outputs = []types.Output{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"outputs": outputs})
}

// pathUUID parses a path parameter, writing a 400 when it is malformed
func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		s.handleError(w, &ErrValidation{Field: name, Message: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ErrValidation{Field: name, Message: "must be an integer"}
	}
	return v, nil
}
