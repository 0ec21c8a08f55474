package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/veloswap/market/internal/auth"
	"github.com/veloswap/market/internal/database"
	idemmemory "github.com/veloswap/market/internal/idempotency/memory"
	markethttp "github.com/veloswap/market/internal/marketplace/adapters/http"
	"github.com/veloswap/market/internal/marketplace/adapters/memory"
	"github.com/veloswap/market/internal/marketplace/app"
	"github.com/veloswap/market/internal/marketplace/domain"
	"github.com/veloswap/market/internal/marketplace/ports"
	"github.com/veloswap/market/internal/result"
)

var (
	seller = domain.Actor{ID: "seller"}
	buyer  = domain.Actor{ID: "buyer"}
	admin  = domain.Actor{ID: "admin", IsAdmin: true}
)

type noopBus struct{}

func (noopBus) Publish(context.Context, ports.Event) error { return nil }

type fakePinger struct {
	pingFn func(ctx context.Context) error
}

func (p fakePinger) Ping(ctx context.Context) error { return p.pingFn(ctx) }

type server struct {
	router   http.Handler
	store    *memory.Store
	keys     *idemmemory.Store
	verifier *auth.Verifier
	reader   *sdkmetric.ManualReader
}

func newServer(t *testing.T, db database.Pinger) *server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	for _, actor := range []domain.Actor{seller, buyer, admin} {
		store.AddUser(actor.ID)
	}

	reader := sdkmetric.NewManualReader()
	metrics, err := markethttp.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	negotiation := app.NewNegotiationService(store, noopBus{}, logger)
	fulfillment := app.NewFulfillmentService(store, noopBus{}, logger)
	verifier := auth.NewVerifier("test-secret")
	keys := idemmemory.NewStore(time.Hour)

	router := markethttp.NewRouter(markethttp.RouterConfig{
		Handler:  markethttp.NewHandler(negotiation, fulfillment, keys, metrics, logger),
		Verifier: verifier,
		Metrics:  metrics,
		DB:       db,
		Logger:   logger,
	})

	return &server{router: router, store: store, keys: keys, verifier: verifier, reader: reader}
}

func (s *server) addListing(id string, price int64) {
	now := time.Now().UTC()
	kg := 9.5
	s.store.AddListing(domain.Listing{
		ID:        id,
		OwnerID:   seller.ID,
		Title:     "Road bike",
		Price:     price,
		Status:    domain.ListingAvailable,
		WeightKg:  &kg,
		Region:    "tokyo",
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *server) do(t *testing.T, method, path string, actor *domain.Actor, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if actor != nil {
		token, err := s.verifier.Issue(*actor, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) result.Result[T] {
	t.Helper()
	var res result.Result[T]
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return res
}

func orderBody(listingID string, method domain.PaymentMethod) app.CreateOrderInput {
	return app.CreateOrderInput{
		ListingID:     listingID,
		PaymentMethod: method,
		ShippingAddress: domain.ShippingAddress{
			RecipientName: "Hanako Sato",
			PostalCode:    "150-0001",
			Region:        "tokyo",
			City:          "Shibuya",
			Line1:         "1-2-3 Jingumae",
			Phone:         "03-1234-5678",
		},
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("liveness does not touch the database", func(t *testing.T) {
		s := newServer(t, nil)
		rec := s.do(t, http.MethodGet, "/healthz", nil, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("readiness reports database failure", func(t *testing.T) {
		s := newServer(t, fakePinger{pingFn: func(context.Context) error { return errors.New("connection refused") }})
		rec := s.do(t, http.MethodGet, "/readyz", nil, nil, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("readiness succeeds when database answers", func(t *testing.T) {
		s := newServer(t, fakePinger{pingFn: func(context.Context) error { return nil }})
		rec := s.do(t, http.MethodGet, "/readyz", nil, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestAPIRequiresToken(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(t, http.MethodGet, "/v1/orders/o1", nil, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if res := decode[any](t, rec); res.Status != result.KindUnauthorized {
		t.Errorf("expected unauthorized envelope, got %+v", res)
	}
}

func TestOfferFlow(t *testing.T) {
	s := newServer(t, nil)
	s.addListing("listing-1", 20000)

	rec := s.do(t, http.MethodPost, "/v1/offers", &buyer, app.CreateOfferInput{
		ListingID:      "listing-1",
		CounterpartyID: seller.ID,
		Amount:         15000,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[app.CreateOfferOutput](t, rec).Value()
	offerPath := "/v1/offers/" + created.Offer.ID

	if rec := s.do(t, http.MethodGet, offerPath, &buyer, nil, nil); rec.Code != http.StatusOK {
		t.Errorf("expected proposer to read offer, got %d", rec.Code)
	}

	if rec := s.do(t, http.MethodPost, offerPath+"/accept", &buyer, nil, nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected proposer accept to be forbidden, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, offerPath+"/accept", &seller, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	accepted := decode[app.AcceptOfferOutput](t, rec).Value()
	if accepted.Order.TotalPrice != 15000 {
		t.Errorf("expected order total 15000, got %d", accepted.Order.TotalPrice)
	}

	rec = s.do(t, http.MethodPost, offerPath+"/reject", &seller, nil, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 rejecting an accepted offer, got %d", rec.Code)
	}
}

func TestCreateOfferRejectsMalformedJSON(t *testing.T) {
	s := newServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/offers", bytes.NewBufferString("{not json"))
	token, _ := s.verifier.Issue(buyer, time.Hour)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateOrderIdempotency(t *testing.T) {
	s := newServer(t, nil)
	s.addListing("listing-1", 20000)

	t.Run("key is required", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/orders", &buyer, orderBody("listing-1", domain.PaymentBankTransfer), nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	headers := map[string]string{"Idempotency-Key": "order-attempt-1"}
	first := s.do(t, http.MethodPost, "/v1/orders", &buyer, orderBody("listing-1", domain.PaymentBankTransfer), headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	out := decode[app.CreateOrderOutput](t, first).Value()
	if out.Order.TotalPrice != 22500 {
		t.Errorf("expected total 22500, got %d", out.Order.TotalPrice)
	}

	replay := s.do(t, http.MethodPost, "/v1/orders", &buyer, orderBody("listing-1", domain.PaymentBankTransfer), headers)
	if replay.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", replay.Code)
	}
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected replay header")
	}
	if decode[app.CreateOrderOutput](t, replay).Value().Order.ID != out.Order.ID {
		t.Error("expected replay to return the original order")
	}
	if n := len(s.store.Orders()); n != 1 {
		t.Errorf("expected exactly one order, got %d", n)
	}

	other := s.do(t, http.MethodPost, "/v1/orders", &buyer, orderBody("listing-1", domain.PaymentBankTransfer),
		map[string]string{"Idempotency-Key": "order-attempt-2"})
	if other.Code != http.StatusCreated {
		t.Errorf("expected a new key to create another bank transfer order, got %d", other.Code)
	}
	if n := len(s.store.Orders()); n != 2 {
		t.Errorf("expected two orders, got %d", n)
	}
}

func TestCreateOrderIdempotency_KeyInFlight(t *testing.T) {
	s := newServer(t, nil)
	s.addListing("listing-1", 20000)
	headers := map[string]string{"Idempotency-Key": "order-attempt-1"}

	if ok, _ := s.keys.Reserve(context.Background(), buyer.ID+":order-attempt-1"); !ok {
		t.Fatal("expected to reserve the key")
	}

	rec := s.do(t, http.MethodPost, "/v1/orders", &buyer, orderBody("listing-1", domain.PaymentBankTransfer), headers)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if res := decode[any](t, rec); res.Status != result.KindConflict {
		t.Errorf("expected conflict envelope, got %+v", res)
	}
	if n := len(s.store.Orders()); n != 0 {
		t.Errorf("expected no order while the key is in flight, got %d", n)
	}

	other := s.do(t, http.MethodPost, "/v1/orders", &seller, orderBody("listing-1", domain.PaymentBankTransfer), headers)
	if other.Code == http.StatusConflict {
		t.Error("expected keys to be scoped per buyer")
	}
}

func TestCreateOrderIdempotency_ConcurrentRetries(t *testing.T) {
	s := newServer(t, nil)
	s.addListing("listing-1", 20000)
	headers := map[string]string{"Idempotency-Key": "order-attempt-1"}

	const retries = 16
	codes := make([]int, retries)
	var wg sync.WaitGroup
	for i := range retries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = s.do(t, http.MethodPost, "/v1/orders", &buyer, orderBody("listing-1", domain.PaymentBankTransfer), headers).Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusCreated && code != http.StatusConflict {
			t.Errorf("retry %d: expected 201 or 409, got %d", i, code)
		}
	}
	if n := len(s.store.Orders()); n != 1 {
		t.Errorf("expected exactly one order, got %d", n)
	}
}

func TestCreateOrderIdempotency_MalformedBodyFreesKey(t *testing.T) {
	s := newServer(t, nil)
	s.addListing("listing-1", 20000)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewBufferString(`{"listing_id":`))
	token, err := s.verifier.Issue(buyer, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "order-attempt-1")
	bad := httptest.NewRecorder()
	s.router.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.Code)
	}

	rec := s.do(t, http.MethodPost, "/v1/orders", &buyer, orderBody("listing-1", domain.PaymentBankTransfer),
		map[string]string{"Idempotency-Key": "order-attempt-1"})
	if rec.Code != http.StatusCreated {
		t.Errorf("expected the key to be usable after a bad request, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrderErrorsMapToStatusCodes(t *testing.T) {
	s := newServer(t, nil)
	s.addListing("listing-1", 20000)

	tests := []struct {
		name   string
		input  app.CreateOrderInput
		actor  domain.Actor
		status int
		kind   result.Kind
	}{
		{"missing listing", orderBody("nope", domain.PaymentBankTransfer), buyer, http.StatusNotFound, result.KindNotFound},
		{"invalid method", orderBody("listing-1", "cash"), buyer, http.StatusUnprocessableEntity, result.KindValidation},
		{"own listing", orderBody("listing-1", domain.PaymentBankTransfer), seller, http.StatusUnprocessableEntity, result.KindUnprocessable},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := tt.actor
			rec := s.do(t, http.MethodPost, "/v1/orders", &actor, tt.input,
				map[string]string{"Idempotency-Key": "case-" + string(rune('a'+i))})
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if res := decode[any](t, rec); res.Status != tt.kind || res.Success {
				t.Errorf("unexpected envelope %+v", res)
			}
		})
	}

	if rec := s.do(t, http.MethodGet, "/v1/orders/missing", &buyer, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown order, got %d", rec.Code)
	}
}

func TestAdminSaleReview(t *testing.T) {
	s := newServer(t, nil)
	s.addListing("listing-1", 20000)
	s.addListing("listing-2", 20000)

	create := func(listingID, key string) string {
		rec := s.do(t, http.MethodPost, "/v1/orders", &buyer, orderBody(listingID, domain.PaymentCreditCard),
			map[string]string{"Idempotency-Key": key})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create order: %d %s", rec.Code, rec.Body.String())
		}
		return decode[app.CreateOrderOutput](t, rec).Value().Order.ID
	}

	orderID := create("listing-1", "k1")
	base := "/v1/admin/orders/" + orderID

	if rec := s.do(t, http.MethodPost, base+"/approve", &buyer, nil, nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected non-admin to be forbidden, got %d", rec.Code)
	}

	if rec := s.do(t, http.MethodPost, base+"/approve", &admin, nil, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected unpaid approval to be unprocessable, got %d", rec.Code)
	}

	if rec := s.do(t, http.MethodPost, base+"/confirm-payment", &admin, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected payment confirmation, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodPost, base+"/approve", &admin, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected approval, got %d: %s", rec.Code, rec.Body.String())
	}
	review := decode[app.SaleReviewOutput](t, rec).Value()
	if review.Order.Status != domain.OrderCompleted || review.Listing.Status != domain.ListingSold {
		t.Errorf("unexpected review outcome %+v", review)
	}

	secondID := create("listing-2", "k2")
	second := "/v1/admin/orders/" + secondID
	s.do(t, http.MethodPost, second+"/confirm-payment", &admin, nil, nil)

	rec = s.do(t, http.MethodPost, second+"/reject", &admin, map[string]string{"reason": "  frame cracked  "}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected rejection, got %d: %s", rec.Code, rec.Body.String())
	}
	rejected := decode[app.SaleReviewOutput](t, rec).Value()
	if rejected.Order.RejectionReason != "frame cracked" {
		t.Errorf("expected trimmed reason, got %q", rejected.Order.RejectionReason)
	}
	if rejected.Listing.Status != domain.ListingAvailable {
		t.Errorf("expected listing released, got %s", rejected.Listing.Status)
	}
}

func TestRequestMetricsUseRoutePattern(t *testing.T) {
	s := newServer(t, nil)
	s.do(t, http.MethodGet, "/v1/orders/abc", &buyer, nil, nil)

	var rm metricdata.ResourceMetrics
	if err := s.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http_requests_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value("route")
				if route.AsString() == "/v1/orders/{id}" {
					return
				}
			}
		}
	}
	t.Error("expected http_requests_total with route /v1/orders/{id}")
}
