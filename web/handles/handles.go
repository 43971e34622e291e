package handles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"conductor/app/objects"
	"conductor/app/workflow"
	"conductor/pkg/contextx"
	"conductor/pkg/log"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const (
	HeaderRequestID    = "X-Request-Id"
	HeaderUserID       = "X-User-Id"
	HeaderAccountID    = "X-Account-Id"
	HeaderAccountOwner = "X-Account-Owner"
)

type Res struct {
	Code  int         `json:"code"`
	Error string      `json:"error,omitempty"`
	Msg   string      `json:"message,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Handles maps HTTP requests onto engine entry points. Authentication
// happens in front of this service, the acting principal arrives in headers.
type Handles struct {
	engine *workflow.Engine
	conn   *gorm.DB
}

// NewRouter builds the API router. conn may be nil to use the shared
// connection.
func NewRouter(engine *workflow.Engine, conn *gorm.DB, gatherer prometheus.Gatherer) *httprouter.Router {
	h := &Handles{engine: engine, conn: conn}
	router := httprouter.New()

	router.POST("/workflows", h.RunWorkflow)
	router.GET("/workflows/:wf", h.GetWorkflow)
	router.DELETE("/workflows/:wf", h.TerminateWorkflow)
	router.POST("/workflows/:wf/start", h.StartWorkflow)
	router.POST("/workflows/:wf/delay", h.DelayWorkflow)
	router.POST("/workflows/:wf/resume", h.ResumeWorkflow)
	router.POST("/workflows/:wf/reconcile", h.ReconcileWorkflow)
	router.POST("/workflows/:wf/return", h.ReturnTo)
	router.POST("/workflows/:wf/tasks/:task/complete", h.CompleteTask)
	router.POST("/workflows/:wf/tasks/:task/revert", h.RevertTask)
	router.POST("/workflows/:wf/tasks/:task/resume", h.ResumeTask)
	router.POST("/workflows/:wf/tasks/:task/checklist", h.MarkChecklist)
	router.POST("/workflows/:wf/tasks/:task/sub-workflows", h.RunSubWorkflow)
	router.POST("/webhooks", h.Subscribe)
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return router
}

func (h *Handles) actingContext(r *http.Request) *contextx.Context {
	owner, _ := strconv.ParseBool(r.Header.Get(HeaderAccountOwner))
	ctx := contextx.NewUserContext(r.Context(), r.Header.Get(HeaderAccountID), r.Header.Get(HeaderUserID), owner)
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = fmt.Sprintf("wf-req-%s", uuid.NewString())
	}
	ctx.SetRequestID(requestID)
	if h.conn != nil {
		ctx.SetDB(h.conn)
	}
	return ctx
}

func writeJSON(w http.ResponseWriter, ctx *contextx.Context, status int, res *Res) {
	res.Code = status
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderRequestID, ctx.GetRequestID())
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Warnf(ctx, "write response failed: %s", err.Error())
	}
}

// statusOf maps domain errors by code, anything else is an internal error.
func statusOf(err error) (int, string) {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest, "bad_request"
	}
	domainErr, ok := workflow.AsDomainError(err)
	if !ok {
		return http.StatusInternalServerError, "internal_error"
	}
	switch {
	case strings.HasSuffix(domainErr.Code, "not_found"):
		return http.StatusNotFound, domainErr.Code
	case domainErr.Code == workflow.ErrConcurrentUpdate.Code:
		return http.StatusConflict, domainErr.Code
	}
	return http.StatusBadRequest, domainErr.Code
}

func reply(w http.ResponseWriter, ctx *contextx.Context, err error, data interface{}) {
	if err == nil {
		writeJSON(w, ctx, http.StatusOK, &Res{Data: data})
		return
	}
	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorf(ctx, "request failed: %s", err.Error())
		writeJSON(w, ctx, status, &Res{Error: code, Msg: "internal error"})
		return
	}
	writeJSON(w, ctx, status, &Res{Error: code, Msg: err.Error()})
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v interface{}) error {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, err.Error())
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, err.Error())
	}
	return nil
}

type runRequest struct {
	// Template is the YAML template document.
	Template string            `json:"template"`
	Kickoff  map[string]string `json:"kickoff"`
}

func (req *runRequest) spec() (*objects.TemplateSpec, error) {
	spec, err := objects.ParseTemplate([]byte(req.Template))
	if err != nil {
		return nil, workflow.ErrInvalidTemplate.WithMessage(err.Error())
	}
	return spec, nil
}

type workflowView struct {
	*objects.Workflow
	Tasks []*objects.Task `json:"tasks"`
}

func (h *Handles) RunWorkflow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := h.actingContext(r)
	req := &runRequest{}
	if err := decode(r, req); err != nil {
		reply(w, ctx, err, nil)
		return
	}
	spec, err := req.spec()
	if err != nil {
		reply(w, ctx, err, nil)
		return
	}
	wf, err := h.engine.RunWorkflow(ctx, spec, req.Kickoff)
	if err != nil {
		reply(w, ctx, err, nil)
		return
	}
	log.Infof(ctx, "workflow %s started from template %q", wf.ID, spec.Name)
	h.writeWorkflow(w, ctx, wf.ID)
}

func (h *Handles) writeWorkflow(w http.ResponseWriter, ctx *contextx.Context, workflowID string) {
	wf, tasks, err := h.engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		reply(w, ctx, err, nil)
		return
	}
	reply(w, ctx, nil, &workflowView{Workflow: wf, Tasks: tasks})
}

func (h *Handles) GetWorkflow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.writeWorkflow(w, h.actingContext(r), ps.ByName("wf"))
}

// call runs an entry point and answers with the resulting workflow.
func (h *Handles) call(w http.ResponseWriter, r *http.Request, ps httprouter.Params, fn func(ctx *contextx.Context) error) {
	ctx := h.actingContext(r)
	if err := fn(ctx); err != nil {
		reply(w, ctx, err, nil)
		return
	}
	h.writeWorkflow(w, ctx, ps.ByName("wf"))
}

func (h *Handles) StartWorkflow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.call(w, r, ps, func(ctx *contextx.Context) error {
		return h.engine.StartWorkflow(ctx, ps.ByName("wf"))
	})
}

func (h *Handles) TerminateWorkflow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := h.actingContext(r)
	err := h.engine.TerminateWorkflow(ctx, ps.ByName("wf"))
	reply(w, ctx, err, nil)
}

func (h *Handles) DelayWorkflow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.call(w, r, ps, func(ctx *contextx.Context) error {
		req := struct {
			Until time.Time `json:"until"`
		}{}
		if err := decode(r, &req); err != nil {
			return err
		}
		return h.engine.ForceDelayWorkflow(ctx, ps.ByName("wf"), req.Until)
	})
}

func (h *Handles) ResumeWorkflow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.call(w, r, ps, func(ctx *contextx.Context) error {
		return h.engine.ForceResumeWorkflow(ctx, ps.ByName("wf"))
	})
}

func (h *Handles) ReconcileWorkflow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.call(w, r, ps, func(ctx *contextx.Context) error {
		return h.engine.UpdateTasksStatus(ctx, ps.ByName("wf"))
	})
}

func (h *Handles) ReturnTo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.call(w, r, ps, func(ctx *contextx.Context) error {
		req := struct {
			Task string `json:"task"`
		}{}
		if err := decode(r, &req); err != nil {
			return err
		}
		return h.engine.ReturnTo(ctx, ps.ByName("wf"), req.Task)
	})
}

func (h *Handles) CompleteTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.call(w, r, ps, func(ctx *contextx.Context) error {
		req := struct {
			Output map[string]string `json:"output"`
		}{}
		if err := decode(r, &req); err != nil {
			return err
		}
		return h.engine.CompleteTask(ctx, ps.ByName("wf"), ps.ByName("task"), req.Output)
	})
}

func (h *Handles) RevertTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.call(w, r, ps, func(ctx *contextx.Context) error {
		req := struct {
			Comment string `json:"comment"`
		}{}
		if err := decode(r, &req); err != nil {
			return err
		}
		return h.engine.RevertTask(ctx, ps.ByName("wf"), ps.ByName("task"), req.Comment)
	})
}

func (h *Handles) ResumeTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.call(w, r, ps, func(ctx *contextx.Context) error {
		return h.engine.ResumeTask(ctx, ps.ByName("wf"), ps.ByName("task"))
	})
}

func (h *Handles) MarkChecklist(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.call(w, r, ps, func(ctx *contextx.Context) error {
		req := struct {
			Marked int `json:"marked"`
		}{}
		if err := decode(r, &req); err != nil {
			return err
		}
		return h.engine.MarkChecklistItems(ctx, ps.ByName("wf"), ps.ByName("task"), req.Marked)
	})
}

func (h *Handles) RunSubWorkflow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := h.actingContext(r)
	req := &runRequest{}
	if err := decode(r, req); err != nil {
		reply(w, ctx, err, nil)
		return
	}
	spec, err := req.spec()
	if err != nil {
		reply(w, ctx, err, nil)
		return
	}
	parent, _, err := h.engine.GetWorkflow(ctx, ps.ByName("wf"))
	if err != nil {
		reply(w, ctx, err, nil)
		return
	}
	sub, err := h.engine.RunSubWorkflow(ctx, ps.ByName("task"), spec, req.Kickoff)
	if err != nil {
		reply(w, ctx, err, nil)
		return
	}
	log.Infof(ctx, "sub-workflow %s started from workflow %s", sub.ID, parent.ID)
	h.writeWorkflow(w, ctx, sub.ID)
}

func (h *Handles) Subscribe(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := h.actingContext(r)
	req := struct {
		Event string `json:"event"`
		URL   string `json:"url"`
	}{}
	if err := decode(r, &req); err != nil {
		reply(w, ctx, err, nil)
		return
	}
	if req.Event == "" || req.URL == "" {
		reply(w, ctx, fmt.Errorf("%w: event and url are required", errBadRequest), nil)
		return
	}
	sub, err := objects.CreateWebhookSubscription(ctx, ctx.GetAccountID(), req.Event, req.URL)
	reply(w, ctx, err, sub)
}
