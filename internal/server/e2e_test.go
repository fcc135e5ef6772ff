package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/api-dispatcher/internal/handlers"
	"github.com/morezero/api-dispatcher/pkg/api"
	"github.com/morezero/api-dispatcher/pkg/auditlog"
	"github.com/morezero/api-dispatcher/pkg/client"
	"github.com/morezero/api-dispatcher/pkg/dispatcher"
	"github.com/morezero/api-dispatcher/pkg/events"
	"github.com/morezero/api-dispatcher/pkg/metrics"
	"github.com/morezero/api-dispatcher/pkg/schema"
)

const e2eTestPrefix = "server:e2e_test"

type memoryClients map[string]map[string]any

func (m memoryClients) GetByField(_ context.Context, field, value string) (map[string]any, error) {
	c, ok := m[field+"="+value]
	if !ok {
		return nil, nil
	}
	return c, nil
}

// productsPost creates a product; it echoes the active client it ran for.
type productsPost struct{}

func (productsPost) Struct() schema.Schema {
	return schema.Object(
		schema.Key("name", validation.Required, schema.String),
		schema.Key("price", schema.Number).Default(float64(0)),
	)
}

func (productsPost) Process(_ context.Context, call *api.Call) error {
	body := map[string]any{"name": call.Request.Data["name"], "price": call.Request.Data["price"]}
	if call.Client != nil {
		body["client"] = call.Client["code"]
	}
	call.Response.SetCode(201).SetHeader("x-product", "created").SetBody(body)
	return nil
}

// rendezvous answers only once two calls are inside Process at the same time.
type rendezvous struct {
	mu   sync.Mutex
	n    int
	both chan struct{}
}

func (r *rendezvous) Process(ctx context.Context, call *api.Call) error {
	r.mu.Lock()
	r.n++
	if r.n == 2 {
		close(r.both)
	}
	r.mu.Unlock()

	select {
	case <-r.both:
		call.Response.SetBody("met")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New("no other request arrived")
	}
}

// testEnv holds the test environment for E2E tests.
type testEnv struct {
	nc      *comms.Conn
	server  *Server
	mu      sync.Mutex
	ended   []*events.DispatchEndedEvent
	records chan *auditlog.Record
}

func (e *testEnv) endedEvents() []*events.DispatchEndedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*events.DispatchEndedEvent(nil), e.ended...)
}

// setupE2E starts an embedded NATS server and wires the dispatcher the way Run
// does, with an in-memory client store and a NATS audit sink.
func setupE2E(t *testing.T, port int) *testEnv {
	t.Helper()

	nc, cleanup := startTestServer(t, port)
	t.Cleanup(cleanup)

	env := &testEnv{nc: nc, records: make(chan *auditlog.Record, 10)}

	cfg := testConfig()
	cfg.AuditLogSink = "comms"
	cfg.AuditLogSubjectPrefix = "api.logs"

	sink, err := newAuditSink(cfg, nc, nil)
	if err != nil {
		t.Fatalf("%s - audit sink: %v", e2eTestPrefix, err)
	}
	if _, err := nc.Subscribe("api.logs.*", func(msg *comms.Msg) {
		var rec auditlog.Record
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			t.Errorf("%s - decode record: %v", e2eTestPrefix, err)
			return
		}
		env.records <- &rec
	}); err != nil {
		t.Fatalf("%s - subscribe to audit logs: %v", e2eTestPrefix, err)
	}

	pub := events.NewCallbackPublisher(func(_ context.Context, event *events.DispatchEndedEvent) error {
		env.mu.Lock()
		env.ended = append(env.ended, event)
		env.mu.Unlock()
		return nil
	})

	resolver := client.NewResolver(
		[]client.Identifier{{Header: "janis-client", ClientField: "code"}},
		memoryClients{"code=acme": {"code": "acme", "status": "active"}},
	)

	s := &Server{cfg: cfg, nc: nc, metrics: metrics.NewCollector()}
	s.fetcher = NewFetcher(cfg, handlers.Deps{})
	s.fetcher.Register("products", "post", func() api.Handler { return productsPost{} })
	meeting := &rendezvous{both: make(chan struct{})}
	s.fetcher.Register("rendezvous", "list", func() api.Handler { return meeting })
	s.disp = dispatcher.New(dispatcher.Params{
		Fetcher: s.fetcher,
		Logs:    auditlog.NewLogger(sink),
		Clients: resolver,
		Events:  pub,
		Metrics: s.metrics,
	})
	env.server = s

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if _, err := s.subscribe(ctx); err != nil {
		t.Fatalf("%s - subscribe: %v", e2eTestPrefix, err)
	}
	return env
}

func sendRequest(t *testing.T, env *testEnv, req *dispatcher.Request) *dispatcher.Reply {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("%s - encode request: %v", e2eTestPrefix, err)
	}
	return request(t, env.nc, env.server.cfg.DispatchSubject, data)
}

func TestE2E_CreateProduct(t *testing.T) {
	env := setupE2E(t, 14273)

	reply := sendRequest(t, env, &dispatcher.Request{
		Endpoint:           "/api/products/",
		Method:             "POST",
		Data:               map[string]any{"name": "  Shirt  "},
		Headers:            map[string]string{"janis-client": "acme", "janis-api-key": "k", "janis-api-secret": "s"},
		AuthenticationData: map[string]any{"clientCode": "acme", "userId": "u-1"},
	})

	if reply.Code != 201 || reply.Error != nil {
		t.Fatalf("%s - expected 201 without error, got %d %+v", e2eTestPrefix, reply.Code, reply.Error)
	}
	if reply.Headers["x-product"] != "created" {
		t.Errorf("%s - expected x-product header, got %v", e2eTestPrefix, reply.Headers)
	}
	body, _ := reply.Body.(map[string]any)
	if body["name"] != "Shirt" || body["price"] != float64(0) || body["client"] != "acme" {
		t.Errorf("%s - unexpected body %v", e2eTestPrefix, body)
	}

	select {
	case rec := <-env.records:
		if rec.EntityID != "products" || rec.UserCreated != "u-1" || rec.Log.Response.Code != 201 {
			t.Errorf("%s - unexpected record %+v", e2eTestPrefix, rec)
		}
		if _, ok := rec.Log.Request.Headers["janis-api-secret"]; ok {
			t.Errorf("%s - api secret must be redacted from the record", e2eTestPrefix)
		}
		data, _ := rec.Log.Request.Data.(map[string]any)
		if data["name"] != "  Shirt  " {
			t.Errorf("%s - record must keep the untrimmed data, got %v", e2eTestPrefix, data)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - no audit record received", e2eTestPrefix)
	}

	ended := env.endedEvents()
	if len(ended) != 1 || ended[0].Code != 201 || ended[0].Endpoint != "products" || ended[0].ClientCode != "acme" {
		t.Errorf("%s - unexpected ended events %+v", e2eTestPrefix, ended)
	}
}

func TestE2E_ValidationError(t *testing.T) {
	env := setupE2E(t, 14274)

	reply := sendRequest(t, env, &dispatcher.Request{
		Endpoint:           "products",
		Method:             "post",
		Data:               map[string]any{"price": "free"},
		AuthenticationData: map[string]any{"clientCode": "acme"},
	})
	if reply.Code != 400 {
		t.Errorf("%s - expected 400, got %d", e2eTestPrefix, reply.Code)
	}
	if reply.Error == nil || reply.Error.StatusCode != 400 {
		t.Errorf("%s - expected error with status 400, got %+v", e2eTestPrefix, reply.Error)
	}

	select {
	case rec := <-env.records:
		if rec.Log.Response.Code != 400 {
			t.Errorf("%s - expected logged 400, got %d", e2eTestPrefix, rec.Log.Response.Code)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - failed dispatches must still be audited", e2eTestPrefix)
	}
}

func TestE2E_GetIsNotAudited(t *testing.T) {
	env := setupE2E(t, 14275)

	reply := sendRequest(t, env, &dispatcher.Request{Endpoint: "routes", AuthenticationData: map[string]any{"clientCode": "acme"}})
	if reply.Code != 200 {
		t.Fatalf("%s - expected 200, got %d", e2eTestPrefix, reply.Code)
	}

	select {
	case rec := <-env.records:
		t.Errorf("%s - unexpected audit record for a get: %+v", e2eTestPrefix, rec)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestE2E_ConcurrentRequests(t *testing.T) {
	env := setupE2E(t, 14276)

	const n = 20
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, _ := json.Marshal(&dispatcher.Request{Endpoint: "status"})
			msg, err := env.nc.Request(env.server.cfg.DispatchSubject, data, 5*time.Second)
			if err != nil {
				t.Errorf("%s - request: %v", e2eTestPrefix, err)
				return
			}
			var reply dispatcher.Reply
			if err := json.Unmarshal(msg.Data, &reply); err != nil {
				t.Errorf("%s - decode: %v", e2eTestPrefix, err)
				return
			}
			codes <- reply.Code
		}()
	}
	wg.Wait()
	close(codes)

	count := 0
	for code := range codes {
		count++
		if code != 200 {
			t.Errorf("%s - expected 200, got %d", e2eTestPrefix, code)
		}
	}
	if count != n {
		t.Errorf("%s - expected %d replies, got %d", e2eTestPrefix, n, count)
	}
	if got := len(env.endedEvents()); got != n {
		t.Errorf("%s - expected %d ended events, got %d", e2eTestPrefix, n, got)
	}
}

func TestE2E_SlowHandlerDoesNotBlockOthers(t *testing.T) {
	env := setupE2E(t, 14277)

	var wg sync.WaitGroup
	replies := make([]*dispatcher.Reply, 2)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, _ := json.Marshal(&dispatcher.Request{Endpoint: "rendezvous"})
			msg, err := env.nc.Request(env.server.cfg.DispatchSubject, data, 5*time.Second)
			if err != nil {
				t.Errorf("%s - request %d: %v", e2eTestPrefix, i, err)
				return
			}
			var reply dispatcher.Reply
			if err := json.Unmarshal(msg.Data, &reply); err != nil {
				t.Errorf("%s - decode %d: %v", e2eTestPrefix, i, err)
				return
			}
			replies[i] = &reply
		}(i)
	}
	wg.Wait()

	for i, reply := range replies {
		if reply == nil || reply.Code != 200 || reply.Body != "met" {
			t.Errorf("%s - request %d was not served alongside the other: %+v", e2eTestPrefix, i, reply)
		}
	}
}
