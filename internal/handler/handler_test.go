package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/platter/internal/catalog"
	"github.com/xenking/platter/internal/domain/analytics"
	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/order"
	"github.com/xenking/platter/internal/handler"
	"github.com/xenking/platter/internal/storage/memory"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *memory.Store
	tokens *auth.Tokens
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	c, err := catalog.ReadFile("../../db/seed/catalog.json")
	require.NoError(t, err)
	require.NoError(t, c.Apply(store))

	h := handler.NewHandler(
		order.NewService(store.OrderTransactor(), order.Config{TaxRate: decimal.RequireFromString("0.05")}),
		delivery.NewService(store.DeliveryTransactor(), nil),
		analytics.NewScanAggregator(store, analytics.Config{}),
	)
	tokens := auth.NewTokens([]byte("test-signing-key"), "platter")
	sec := handler.NewSecurityHandler(tokens)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Use(sec.Authenticate)
		h.Mount(r)
	})
	return &testServer{t: t, router: router, store: store, tokens: tokens}
}

func (s *testServer) token(userID string, role auth.Role) string {
	tok, err := s.tokens.Issue(auth.Principal{UserID: userID, Role: role}, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token, body string) (int, map[string]any) {
	s.t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *testServer) doList(method, path, token string) (int, []map[string]any) {
	s.t.Helper()

	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out []map[string]any
	if w.Code == http.StatusOK {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

const dosaOrder = `{
	"restaurantId": "r-dosa-corner",
	"items": [
		{"menuItemId": "i-masala-dosa", "quantity": 1, "customizations": ["o-ghee"]},
		{"menuItemId": "i-filter-coffee", "quantity": 1}
	],
	"deliveryAddress": "12 MG Road",
	"paymentMethod": "upi"
}`

const welcomeOrder = `{
	"restaurantId": "r-dosa-corner",
	"items": [{"menuItemId": "i-masala-dosa", "quantity": 2, "customizations": ["o-ghee"]}],
	"deliveryAddress": "12 MG Road",
	"couponCode": "WELCOME50"
}`

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"Missing", ""},
		{"NotBearer", "Basic dXNlcjpwYXNz"},
		{"Garbage", "Bearer not-a-jwt"},
		{"WrongKey", "Bearer " + mustIssue(t, auth.NewTokens([]byte("other"), "platter"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders/o-1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			assert.JSONEq(t, `{"code":401,"message":"unauthorized"}`, w.Body.String())
		})
	}
}

func mustIssue(t *testing.T, tokens *auth.Tokens) string {
	tok, err := tokens.Issue(auth.Principal{UserID: "u-customer-1", Role: auth.RoleCustomer}, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)

	code, body := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	require.Equal(t, http.StatusCreated, code, body)

	assert.Equal(t, "u-customer-1", body["userId"])
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "pending", body["paymentStatus"])
	assert.Equal(t, 190.0, body["totalAmount"])
	assert.Equal(t, 30.0, body["deliveryFee"])
	assert.Equal(t, 9.5, body["taxes"])
	assert.Equal(t, 0.0, body["discountAmount"])
	assert.Equal(t, 229.5, body["finalAmount"])
	assert.NotContains(t, body, "couponCode")

	items := body["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, 150.0, first["unitPrice"])
	assert.Len(t, first["customizations"], 1)
}

func TestCreateOrder_WithCoupon(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)

	code, body := s.do(http.MethodPost, "/api/orders", customer, welcomeOrder)
	require.Equal(t, http.StatusCreated, code, body)

	assert.Equal(t, 300.0, body["totalAmount"])
	assert.Equal(t, 15.0, body["taxes"])
	assert.Equal(t, 50.0, body["discountAmount"])
	assert.Equal(t, 295.0, body["finalAmount"])
	assert.Equal(t, "WELCOME50", body["couponCode"])

	rule, ok := s.store.Coupon("WELCOME50")
	require.True(t, ok)
	assert.Equal(t, 1, rule.UsageCount)
}

func TestCreateOrder_Rejected(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)

	tests := []struct {
		name  string
		token string
		body  string
		code  int
	}{
		{"MalformedJSON", customer, `{"restaurantId":`, http.StatusBadRequest},
		{"NotAnObject", customer, `[]`, http.StatusBadRequest},
		{"NoItems", customer, `{"restaurantId":"r-dosa-corner","items":[],"deliveryAddress":"x"}`, http.StatusBadRequest},
		{"ZeroQuantity", customer, `{"restaurantId":"r-dosa-corner","items":[{"menuItemId":"i-idli","quantity":0}],"deliveryAddress":"x"}`, http.StatusBadRequest},
		{"BelowRestaurantMinimum", customer, `{"restaurantId":"r-dosa-corner","items":[{"menuItemId":"i-idli","quantity":1}],"deliveryAddress":"x"}`, http.StatusBadRequest},
		{"UnknownRestaurant", customer, `{"restaurantId":"r-nope","items":[{"menuItemId":"i-idli","quantity":3}],"deliveryAddress":"x"}`, http.StatusUnprocessableEntity},
		{"ItemFromOtherRestaurant", customer, `{"restaurantId":"r-dosa-corner","items":[{"menuItemId":"i-margherita","quantity":1}],"deliveryAddress":"x"}`, http.StatusUnprocessableEntity},
		{"UnknownCoupon", customer, strings.Replace(welcomeOrder, "WELCOME50", "NOPE", 1), http.StatusUnprocessableEntity},
		{"CouponMinimumNotMet", customer, strings.Replace(dosaOrder, `"upi"`, `"upi", "couponCode": "TENOFF"`, 1), http.StatusUnprocessableEntity},
		{"CourierCannotOrder", s.token("c-asha", auth.RoleCourier), dosaOrder, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(http.MethodPost, "/api/orders", tt.token, tt.body)
			assert.Equal(t, tt.code, code, body)
			assert.EqualValues(t, tt.code, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}

	rule, ok := s.store.Coupon("TENOFF")
	require.True(t, ok)
	assert.Zero(t, rule.UsageCount)
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)
	owner := s.token("u-owner-1", auth.RoleRestaurant)
	courier := s.token("u-courier-1", auth.RoleCourier)

	_, created := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	id := created["id"].(string)

	code, body := s.do(http.MethodPost, "/api/orders/"+id+"/status", customer, `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusForbidden, code, body)

	code, body = s.do(http.MethodPost, "/api/orders/"+id+"/status", owner, `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "confirmed", body["status"])
	assert.EqualValues(t, 2, body["version"])

	code, body = s.do(http.MethodPost, "/api/orders/"+id+"/status", owner, `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusConflict, code, body)

	code, body = s.do(http.MethodPost, "/api/orders/"+id+"/status", owner, `{"status":"teleported"}`)
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, d := s.do(http.MethodGet, "/api/orders/"+id+"/delivery", customer, "")
	require.Equal(t, http.StatusOK, code, d)
	assert.Equal(t, "awaiting_assignment", d["status"])
	assert.Nil(t, d["courierId"])
	deliveryID := d["id"].(string)

	code, d = s.do(http.MethodPost, "/api/deliveries/"+deliveryID+"/assign", owner, `{"courierId":"c-asha"}`)
	require.Equal(t, http.StatusOK, code, d)
	assert.Equal(t, "assigned", d["status"])
	assert.Equal(t, "c-asha", d["courierId"])

	code, d = s.do(http.MethodPost, "/api/deliveries/"+deliveryID+"/location", courier,
		`{"lat": 12.97, "lng": 77.59, "timestamp": "2026-01-02T12:00:00Z"}`)
	require.Equal(t, http.StatusOK, code, d)
	assert.Equal(t, false, d["stale"])

	code, d = s.do(http.MethodPost, "/api/deliveries/"+deliveryID+"/location", courier,
		`{"lat": 12.96, "lng": 77.58, "timestamp": "2026-01-02T11:59:00Z"}`)
	require.Equal(t, http.StatusOK, code, d)
	assert.Equal(t, true, d["stale"])
	loc := d["delivery"].(map[string]any)["location"].(map[string]any)
	assert.Equal(t, 12.96, loc["lat"])

	code, d = s.do(http.MethodGet, "/api/deliveries/"+deliveryID+"/location", customer, "")
	require.Equal(t, http.StatusOK, code, d)
	assert.Equal(t, deliveryID, d["deliveryId"])
	assert.Equal(t, 77.58, d["location"].(map[string]any)["lng"])
	code, _ = s.do(http.MethodGet, "/api/deliveries/"+deliveryID+"/location", s.token("u-stranger", auth.RoleCustomer), "")
	assert.Equal(t, http.StatusForbidden, code)

	for _, st := range []string{"picked_up", "delivered"} {
		code, d = s.do(http.MethodPost, "/api/deliveries/"+deliveryID+"/status", courier, `{"status":"`+st+`"}`)
		require.Equal(t, http.StatusOK, code, d)
		assert.Equal(t, st, d["status"])
	}
	assert.NotNil(t, d["pickupTime"])
	assert.NotNil(t, d["deliveryTime"])

	for _, st := range []string{"preparing", "out_for_delivery", "delivered"} {
		code, body = s.do(http.MethodPost, "/api/orders/"+id+"/status", owner, `{"status":"`+st+`"}`)
		require.Equal(t, http.StatusOK, code, body)
	}

	code, events := s.doList(http.MethodGet, "/api/orders/"+id+"/events", customer)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, events, 5)
	assert.Nil(t, events[0]["from"])
	assert.Equal(t, "created", events[0]["to"])
	assert.Equal(t, "u-owner-1", events[4]["actor"])

	code, body = s.do(http.MethodPost, "/api/orders/"+id+"/cancel", customer, `{"reason":"too late"}`)
	assert.Equal(t, http.StatusConflict, code, body)
}

func TestDelivery_Errors(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)
	owner := s.token("u-owner-1", auth.RoleRestaurant)
	courier := s.token("u-courier-1", auth.RoleCourier)

	_, created := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	id := created["id"].(string)

	code, _ := s.do(http.MethodGet, "/api/orders/"+id+"/delivery", customer, "")
	assert.Equal(t, http.StatusNotFound, code)

	s.do(http.MethodPost, "/api/orders/"+id+"/status", owner, `{"status":"confirmed"}`)
	_, d := s.do(http.MethodGet, "/api/orders/"+id+"/delivery", owner, "")
	deliveryID := d["id"].(string)

	tests := []struct {
		name  string
		token string
		path  string
		body  string
		code  int
	}{
		{"UnknownDelivery", owner, "/api/deliveries/nope/assign", `{"courierId":"c-asha"}`, http.StatusNotFound},
		{"UnknownCourier", owner, "/api/deliveries/" + deliveryID + "/assign", `{"courierId":"c-nope"}`, http.StatusNotFound},
		{"MissingCourier", owner, "/api/deliveries/" + deliveryID + "/assign", `{}`, http.StatusBadRequest},
		{"CustomerCannotAssign", customer, "/api/deliveries/" + deliveryID + "/assign", `{"courierId":"c-asha"}`, http.StatusForbidden},
		{"SkipAssignment", owner, "/api/deliveries/" + deliveryID + "/status", `{"status":"picked_up"}`, http.StatusConflict},
		{"AssignedViaStatus", owner, "/api/deliveries/" + deliveryID + "/status", `{"status":"assigned"}`, http.StatusBadRequest},
		{"UnassignedCourier", courier, "/api/deliveries/" + deliveryID + "/status", `{"status":"picked_up"}`, http.StatusForbidden},
		{"UnassignedCourierLocation", courier, "/api/deliveries/" + deliveryID + "/location", `{"lat":1,"lng":1,"timestamp":"2026-01-02T12:00:00Z"}`, http.StatusForbidden},
		{"LatOutOfRange", courier, "/api/deliveries/" + deliveryID + "/location", `{"lat":91,"lng":0,"timestamp":"2026-01-02T12:00:00Z"}`, http.StatusBadRequest},
		{"MissingTimestamp", courier, "/api/deliveries/" + deliveryID + "/location", `{"lat":1,"lng":1}`, http.StatusBadRequest},
		{"BadTimestamp", courier, "/api/deliveries/" + deliveryID + "/location", `{"lat":1,"lng":1,"timestamp":"yesterday"}`, http.StatusBadRequest},
		{"MissingLng", courier, "/api/deliveries/" + deliveryID + "/location", `{"lat":1,"timestamp":"2026-01-02T12:00:00Z"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.code, code, body)
		})
	}

	code, _ = s.do(http.MethodPost, "/api/deliveries/"+deliveryID+"/assign", owner, `{"courierId":"c-asha"}`)
	require.Equal(t, http.StatusOK, code)

	_, other := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	otherID := other["id"].(string)
	s.do(http.MethodPost, "/api/orders/"+otherID+"/status", owner, `{"status":"confirmed"}`)
	_, d = s.do(http.MethodGet, "/api/orders/"+otherID+"/delivery", owner, "")

	code, body := s.do(http.MethodPost, "/api/deliveries/"+d["id"].(string)+"/assign", owner, `{"courierId":"c-asha"}`)
	assert.Equal(t, http.StatusConflict, code, body)
}

func TestCancelOrder(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)
	owner := s.token("u-owner-1", auth.RoleRestaurant)

	_, created := s.do(http.MethodPost, "/api/orders", customer, welcomeOrder)
	id := created["id"].(string)
	s.do(http.MethodPost, "/api/orders/"+id+"/status", owner, `{"status":"confirmed"}`)

	stranger := s.token("u-stranger", auth.RoleCustomer)
	code, _ := s.do(http.MethodPost, "/api/orders/"+id+"/cancel", stranger, `{"reason":"mine now"}`)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, "/api/orders/"+id, stranger, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.do(http.MethodPost, "/api/orders/"+id+"/cancel", customer, `{"reason":"changed my mind"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, "changed my mind", body["cancelReason"])

	rule, ok := s.store.Coupon("WELCOME50")
	require.True(t, ok)
	assert.Zero(t, rule.UsageCount)

	_, d := s.do(http.MethodGet, "/api/orders/"+id+"/delivery", owner, "")
	assert.Equal(t, true, d["orderCancelled"])
	code, _ = s.do(http.MethodPost, "/api/deliveries/"+d["id"].(string)+"/assign", owner, `{"courierId":"c-asha"}`)
	assert.Equal(t, http.StatusConflict, code)

	_, second := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	code, body = s.do(http.MethodPost, "/api/orders/"+second["id"].(string)+"/cancel", owner, "")
	require.Equal(t, http.StatusOK, code, body)
	assert.NotContains(t, body, "cancelReason")

	code, _ = s.do(http.MethodGet, "/api/orders/missing", owner, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAnalytics(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)
	owner := s.token("u-owner-1", auth.RoleRestaurant)

	code, body := s.do(http.MethodGet, "/api/analytics/restaurants/r-dosa-corner", owner, "")
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 0, body["orderCount"])
	assert.Equal(t, 0.0, body["averageOrderValue"])
	assert.Empty(t, body["popularItems"])

	s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	s.do(http.MethodPost, "/api/orders", customer, welcomeOrder)
	_, cancelled := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	s.do(http.MethodPost, "/api/orders/"+cancelled["id"].(string)+"/cancel", customer, "")

	code, body = s.do(http.MethodGet, "/api/analytics/restaurants/r-dosa-corner?limit=1", owner, "")
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 2, body["orderCount"])
	assert.Equal(t, 524.5, body["totalRevenue"])
	assert.Equal(t, 262.25, body["averageOrderValue"])
	popular := body["popularItems"].([]any)
	require.Len(t, popular, 1)
	assert.Equal(t, "i-masala-dosa", popular[0].(map[string]any)["menuItemId"])
	assert.EqualValues(t, 3, popular[0].(map[string]any)["quantity"])

	code, _ = s.do(http.MethodGet, "/api/analytics/restaurants/r-dosa-corner?limit=zero", owner, "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodGet, "/api/analytics/restaurants/r-dosa-corner", customer, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(http.MethodGet, "/api/analytics/users/u-customer-1", customer, "")
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 2, body["totalOrders"])
	assert.Equal(t, 524.5, body["totalSpent"])

	code, _ = s.do(http.MethodGet, "/api/analytics/users/u-customer-1", owner, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, "/api/analytics/users/u-customer-1", s.token("ops", auth.RoleAdmin), "")
	assert.Equal(t, http.StatusOK, code)
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)
	other := s.token("u-customer-2", auth.RoleCustomer)
	owner := s.token("u-owner-1", auth.RoleRestaurant)

	var ids []string
	for range 3 {
		code, body := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
		require.Equal(t, http.StatusCreated, code, body)
		ids = append(ids, body["id"].(string))
	}
	_, theirs := s.do(http.MethodPost, "/api/orders", other, dosaOrder)

	code, list := s.doList(http.MethodGet, "/api/orders", customer)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0]["id"])
	assert.Equal(t, ids[0], list[2]["id"])
	assert.NotEmpty(t, list[0]["items"])

	code, list = s.doList(http.MethodGet, "/api/orders?limit=1&offset=1", customer)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, ids[1], list[0]["id"])

	code, list = s.doList(http.MethodGet, "/api/orders?restaurantId=r-dosa-corner", owner)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 4)
	assert.Equal(t, theirs["id"], list[0]["id"])

	code, list = s.doList(http.MethodGet, "/api/orders?userId=u-customer-2", s.token("ops", auth.RoleAdmin))
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)

	tests := []struct {
		name  string
		token string
		path  string
		code  int
	}{
		{"OtherCustomer", customer, "/api/orders?userId=u-customer-2", http.StatusForbidden},
		{"RestaurantRequired", owner, "/api/orders", http.StatusBadRequest},
		{"NotOwner", s.token("u-owner-2", auth.RoleRestaurant), "/api/orders?restaurantId=r-dosa-corner", http.StatusForbidden},
		{"Courier", s.token("u-courier-1", auth.RoleCourier), "/api/orders", http.StatusForbidden},
		{"NegativeOffset", customer, "/api/orders?offset=-1", http.StatusBadRequest},
		{"BadLimit", customer, "/api/orders?limit=ten", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := s.do(http.MethodGet, tt.path, tt.token, "")
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestCourierDeliveries(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)
	owner := s.token("u-owner-1", auth.RoleRestaurant)
	courier := s.token("u-courier-1", auth.RoleCourier)

	code, list := s.doList(http.MethodGet, "/api/couriers/c-asha/deliveries", courier)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, list)

	_, created := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	id := created["id"].(string)
	s.do(http.MethodPost, "/api/orders/"+id+"/status", owner, `{"status":"confirmed"}`)
	_, d := s.do(http.MethodGet, "/api/orders/"+id+"/delivery", owner, "")
	code, _ = s.do(http.MethodPost, "/api/deliveries/"+d["id"].(string)+"/assign", owner, `{"courierId":"c-asha"}`)
	require.Equal(t, http.StatusOK, code)

	code, list = s.doList(http.MethodGet, "/api/couriers/c-asha/deliveries", courier)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["orderId"])
	assert.Equal(t, "assigned", list[0]["status"])

	code, _ = s.do(http.MethodGet, "/api/couriers/c-ravi/deliveries", courier, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, "/api/couriers/c-asha/deliveries", customer, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, "/api/couriers/c-nope/deliveries", s.token("ops", auth.RoleAdmin), "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRestaurantOwnership(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)
	owner := s.token("u-owner-1", auth.RoleRestaurant)
	stranger := s.token("u-owner-2", auth.RoleRestaurant)

	_, created := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	id := created["id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"Get", http.MethodGet, "/api/orders/" + id, ""},
		{"Transition", http.MethodPost, "/api/orders/" + id + "/status", `{"status":"confirmed"}`},
		{"Cancel", http.MethodPost, "/api/orders/" + id + "/cancel", ""},
		{"Analytics", http.MethodGet, "/api/analytics/restaurants/r-dosa-corner", ""},
		{"UnknownRestaurant", http.MethodGet, "/api/analytics/restaurants/r-nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(tt.method, tt.path, stranger, tt.body)
			assert.Equal(t, http.StatusForbidden, code, body)
		})
	}

	code, body := s.do(http.MethodPost, "/api/orders/"+id+"/status", owner, `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, code, body)
	_, d := s.do(http.MethodGet, "/api/orders/"+id+"/delivery", owner, "")
	deliveryID := d["id"].(string)

	code, _ = s.do(http.MethodGet, "/api/deliveries/"+deliveryID, stranger, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodPost, "/api/deliveries/"+deliveryID+"/assign", stranger, `{"courierId":"c-asha"}`)
	assert.Equal(t, http.StatusForbidden, code)

	c, ok := s.store.Courier("c-asha")
	require.True(t, ok)
	assert.True(t, c.Available)
}

func TestCancelOrder_FreesCourier(t *testing.T) {
	s := newTestServer(t)
	customer := s.token("u-customer-1", auth.RoleCustomer)
	owner := s.token("u-owner-1", auth.RoleRestaurant)

	_, created := s.do(http.MethodPost, "/api/orders", customer, dosaOrder)
	id := created["id"].(string)
	s.do(http.MethodPost, "/api/orders/"+id+"/status", owner, `{"status":"confirmed"}`)
	_, d := s.do(http.MethodGet, "/api/orders/"+id+"/delivery", owner, "")
	code, _ := s.do(http.MethodPost, "/api/deliveries/"+d["id"].(string)+"/assign", owner, `{"courierId":"c-asha"}`)
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(http.MethodPost, "/api/orders/"+id+"/cancel", customer, `{"reason":"changed my mind"}`)
	require.Equal(t, http.StatusOK, code, body)

	c, ok := s.store.Courier("c-asha")
	require.True(t, ok)
	assert.True(t, c.Available)
}
