package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/api-dispatcher/pkg/api"
	"github.com/morezero/api-dispatcher/pkg/apierror"
	"github.com/morezero/api-dispatcher/pkg/auditlog"
	"github.com/morezero/api-dispatcher/pkg/events"
	"github.com/morezero/api-dispatcher/pkg/fetcher"
	"github.com/morezero/api-dispatcher/pkg/session"
)

const logPrefix = "dispatcher:dispatch"

// Stage default messages.
const (
	MessageInternalError       = "Internal error"
	MessageInvalidData         = "Invalid data"
	MessageInternalServerError = "Internal server error"
)

// State is a lifecycle state of one dispatch.
type State string

// Lifecycle states. ERRORED is terminal and reachable from every stage.
const (
	StateConstructed State = "CONSTRUCTED"
	StatePrepared    State = "PREPARED"
	StateSessionSet  State = "SESSION_SET"
	StateValidated   State = "VALIDATED"
	StateProcessed   State = "PROCESSED"
	StateResponded   State = "RESPONDED"
	StateErrored     State = "ERRORED"
)

// ClientResolver finds the active client of a call. *client.Resolver implements it.
type ClientResolver interface {
	Resolve(ctx context.Context, call *api.Call) (map[string]any, error)
}

// Recorder observes finished dispatches. *metrics.Collector implements it.
type Recorder interface {
	ObserveDispatch(method string, code int, executionMs float64)
}

// Params holds the collaborators of a Dispatcher. Only Fetcher is required.
type Params struct {
	Fetcher  *fetcher.Fetcher
	Sessions session.Factory
	Logs     *auditlog.Logger
	Clients  ClientResolver
	Events   events.EventPublisher
	Metrics  Recorder
}

// Dispatcher runs requests through the handler lifecycle. It is safe for
// concurrent use; every dispatch gets its own state.
type Dispatcher struct {
	fetcher  *fetcher.Fetcher
	sessions session.Factory
	logs     *auditlog.Logger
	clients  ClientResolver
	events   events.EventPublisher
	metrics  Recorder
}

// New creates a Dispatcher.
func New(p Params) *Dispatcher {
	d := &Dispatcher{
		fetcher:  p.Fetcher,
		sessions: p.Sessions,
		logs:     p.Logs,
		clients:  p.Clients,
		events:   p.Events,
		metrics:  p.Metrics,
	}
	if d.fetcher == nil {
		d.fetcher = fetcher.New(fetcher.DefaultConfig())
	}
	if d.sessions == nil {
		d.sessions = session.DefaultFactory{}
	}
	if d.logs == nil {
		d.logs = auditlog.NewLogger(nil)
	}
	if d.events == nil {
		d.events = &events.NoOpPublisher{}
	}
	return d
}

// Dispatch runs req through the lifecycle. A malformed descriptor fails before
// any stage runs and yields no response. Otherwise a response is always
// returned; when a stage failed the triggering error is returned with it, its
// StatusCode and Body matching the response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s := d.run(ctx, req)
	if s.err != nil {
		return s.response, s.err
	}
	return s.response, nil
}

// dispatch is the state of one request.
type dispatch struct {
	started  time.Time
	state    State
	call     *api.Call
	handler  api.Handler
	filePath string
	pristine map[string]any
	err      *apierror.Error
	response *Response
}

func (d *Dispatcher) run(ctx context.Context, req *Request) *dispatch {
	s := &dispatch{started: time.Now(), state: StateConstructed, call: api.NewCall()}

	ctx = d.prepare(ctx, s, req)
	d.setSession(ctx, s, req)
	d.setClient(ctx, s)
	d.validate(ctx, s)
	d.process(ctx, s)
	s.call.ExecutionTime = float64(time.Since(s.started).Microseconds()) / 1000

	d.respond(s)
	d.saveLog(ctx, s)
	d.publishEnded(ctx, s)
	if d.metrics != nil {
		d.metrics.ObserveDispatch(s.call.Request.Method, s.response.Code, s.call.ExecutionTime)
	}
	return s
}

func (d *Dispatcher) prepare(ctx context.Context, s *dispatch, req *Request) context.Context {
	endpoint := NormalizeEndpoint(req.Endpoint)
	method := NormalizeMethod(req.Method)
	logID := uuid.NewString()

	s.call.Request = api.Request{
		Endpoint:       endpoint,
		Method:         method,
		Data:           TrimData(req.Data),
		RawData:        req.RawData,
		PathParameters: fetcher.PathParameters(endpoint),
		Headers:        copyStrings(req.Headers),
		Cookies:        copyStrings(req.Cookies),
		LogID:          logID,
	}
	s.pristine = CloneData(req.Data)
	ctx = WithLogID(ctx, logID)

	slog.Debug(fmt.Sprintf("%s - %s %s logId=%s", logPrefix, method, endpoint, logID))

	res, err := d.fetcher.Resolve(endpoint, method)
	if err != nil {
		status := 500
		if errors.Is(err, apierror.ErrHandlerNotFound) {
			status = 404
		}
		s.fail(err, apierror.CodeInvalidHandler, status, MessageInternalError)
		return ctx
	}

	s.handler = res.Handler
	s.filePath = res.FilePath
	s.call.Request.PathParameters = res.PathParameters
	s.state = StatePrepared
	return ctx
}

func (d *Dispatcher) setSession(ctx context.Context, s *dispatch, req *Request) {
	if s.state == StateErrored {
		return
	}
	var sess session.Session
	err := guard(apierror.CodeSessionFailed, func() (err error) {
		sess, err = d.sessions.CreateSession(ctx, req.AuthenticationData)
		return err
	})
	if err != nil {
		s.fail(err, apierror.CodeSessionFailed, 500, MessageInternalError)
		return
	}
	s.call.Session = sess
	s.state = StateSessionSet
}

// setClient attaches the active client. Lookup failures never fail the dispatch.
func (d *Dispatcher) setClient(ctx context.Context, s *dispatch) {
	if s.state == StateErrored || d.clients == nil || s.call.Session == nil {
		return
	}
	client, err := d.clients.Resolve(ctx, s.call)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - active client lookup failed for logId=%s: %v", logPrefix, s.call.Request.LogID, err))
		return
	}
	s.call.Client = client
}

func (d *Dispatcher) validate(ctx context.Context, s *dispatch) {
	if s.state == StateErrored {
		return
	}

	if structured, ok := s.handler.(api.Structured); ok {
		var data map[string]any
		err := guard(apierror.CodeInvalidStruct, func() (err error) {
			if sch := structured.Struct(); sch != nil {
				data, err = sch.Apply(s.call.Request.Data)
			}
			return err
		})
		if err != nil {
			s.fail(err, apierror.CodeInvalidStruct, 400, MessageInvalidData)
			return
		}
		if data != nil {
			s.call.Request.Data = data
		}
	}

	if v, ok := s.handler.(api.Validator); ok {
		if err := guard(apierror.CodeValidationFailed, func() error { return v.Validate(ctx, s.call) }); err != nil {
			s.fail(err, apierror.CodeValidationFailed, 400, MessageInvalidData)
			return
		}
	}
	s.state = StateValidated
}

func (d *Dispatcher) process(ctx context.Context, s *dispatch) {
	if s.state == StateErrored {
		return
	}
	if err := guard(apierror.CodeProcessingFailed, func() error { return s.handler.Process(ctx, s.call) }); err != nil {
		s.fail(err, apierror.CodeProcessingFailed, 500, MessageInternalServerError)
		return
	}
	if s.call.Response.Code == 0 {
		s.call.Response.Code = 200
	}
	s.state = StateProcessed
}

func (d *Dispatcher) respond(s *dispatch) {
	res := &s.call.Response
	if res.Code == 0 {
		res.Code = 200
	}
	s.response = &Response{
		Code:    res.Code,
		Headers: copyStrings(res.Headers),
		Cookies: copyStrings(res.Cookies),
		Body:    res.Body,
	}
	if s.err != nil {
		s.err.StatusCode = res.Code
		s.err.Body = res.Body
		return
	}
	s.state = StateResponded
}

// saveLog writes the audit record. Failures are logged and swallowed.
func (d *Dispatcher) saveLog(ctx context.Context, s *dispatch) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - failed to save audit log %s: panic: %v", logPrefix, s.call.Request.LogID, r))
		}
	}()
	if _, err := d.logs.Save(ctx, s.call, api.OptionsOf(s.handler), s.pristine); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to save audit log %s: %v", logPrefix, s.call.Request.LogID, err))
	}
}

func (d *Dispatcher) publishEnded(ctx context.Context, s *dispatch) {
	event := &events.DispatchEndedEvent{
		Endpoint:      s.call.Request.Endpoint,
		Method:        s.call.Request.Method,
		Code:          s.response.Code,
		LogID:         s.call.Request.LogID,
		ExecutionTime: s.call.ExecutionTime,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if s.call.Session != nil {
		event.ClientCode = s.call.Session.ClientCode()
	}
	if err := d.events.PublishEnded(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish ended event %s: %v", logPrefix, event.LogID, err))
	}
}

// fail records err as the outcome of the current stage and moves to ERRORED.
//
// Status: a 4xx/5xx status declared by the error wins, then a code already set
// on the response, then the stage default. Body: a body declared by the error
// wins, then a body already set on the response, then {message, messageVariables}.
func (s *dispatch) fail(err error, code apierror.Code, defaultStatus int, defaultMessage string) {
	apiErr := apierror.Wrap(err, code)
	res := &s.call.Response

	switch {
	case apierror.IsErrorStatus(apiErr.StatusCode):
		res.Code = apiErr.StatusCode
	case res.Code == 0:
		res.Code = defaultStatus
	}

	switch {
	case apiErr.Body != nil:
		res.Body = apiErr.Body
	case res.Body != nil:
	default:
		message := apiErr.Message
		if message == "" {
			message = defaultMessage
		}
		body := map[string]any{"message": message}
		if len(apiErr.MessageVariables) > 0 {
			body["messageVariables"] = apiErr.MessageVariables
		}
		res.Body = body
	}

	log := slog.Warn
	if res.Code >= 500 {
		log = slog.Error
	}
	log(fmt.Sprintf("%s - %s %s failed at %s with %d: %v", logPrefix, s.call.Request.Method, s.call.Request.Endpoint, s.state, res.Code, err))

	s.err = apiErr
	s.state = StateErrored
}

// guard runs fn, turning a panic into an error without a message so the stage
// default message is used.
func guard(code apierror.Code, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &apierror.Error{Code: code, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}
