package routes

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/internal/address"
	"github.com/anishmaharjan/kinmel-backend/internal/cart"
	checkoutsvc "github.com/anishmaharjan/kinmel-backend/internal/checkout"
	"github.com/anishmaharjan/kinmel-backend/internal/fulfillment"
	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/internal/payments"
	"github.com/anishmaharjan/kinmel-backend/internal/stock"
	"github.com/anishmaharjan/kinmel-backend/pkg/config"
	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/esewa"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox"
)

const testSecret = "8gBm/:&EnhH.1/q"

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubGateway struct {
	status string
	refID  string
}

func (g *stubGateway) CheckStatus(_ context.Context, totalAmount, transactionUUID string) (*esewa.StatusResponse, error) {
	return &esewa.StatusResponse{
		ProductCode:     "EPAYTEST",
		TransactionUUID: transactionUUID,
		TotalAmount:     totalAmount,
		Status:          g.status,
		RefID:           g.refID,
	}, nil
}

type harness struct {
	handler http.Handler
	db      *gorm.DB
	gateway *stubGateway
	buyer   uuid.UUID
	seller  uuid.UUID
	addr    models.Address
	variant models.ProductVariant
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dsn := "file:router_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tx := gormTxRunner{db: db}
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	addressRepo := address.NewRepository(db)
	cartRepo := cart.NewRepository(db)
	ordersRepo := orders.NewRepository(db)

	cartSvc, err := cart.NewService(cartRepo, tx)
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	checkoutSvc, err := checkoutsvc.NewService(addressRepo, cartRepo, ordersRepo, stock.NewLedger(), tx, outboxSvc, "100.00", nil, nil)
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}
	fulfillmentSvc, err := fulfillment.NewService(ordersRepo, tx, outboxSvc, nil)
	if err != nil {
		t.Fatalf("fulfillment service: %v", err)
	}
	gateway := &stubGateway{status: esewa.StatusPending}
	esewaCfg := config.EsewaConfig{
		SecretKey:   testSecret,
		ProductCode: "EPAYTEST",
		FormURL:     "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
		SuccessURL:  "https://kinmel.example/payments/esewa/callback",
		FailureURL:  "https://kinmel.example/payments/esewa/callback",
		CallbackTTL: time.Hour,
	}
	paymentsSvc, err := payments.NewService(payments.NewRepository(db), ordersRepo, gateway, esewaCfg, tx, outboxSvc, nil, nil, nil)
	if err != nil {
		t.Fatalf("payments service: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "dev"
	handler := NewRouter(Deps{
		Cfg:                cfg,
		AddressRepo:        addressRepo,
		OrdersRepo:         ordersRepo,
		CartService:        cartSvc,
		CheckoutService:    checkoutSvc,
		FulfillmentService: fulfillmentSvc,
		PaymentsService:    paymentsSvc,
	})

	buyer := uuid.New()
	seller := uuid.New()
	addr := models.Address{
		ID:            uuid.New(),
		BuyerID:       buyer,
		RecipientName: "Sita Shrestha",
		Phone:         "9841000000",
		Line1:         "Thamel Marg",
		City:          "Kathmandu",
		District:      "Kathmandu",
	}
	if err := db.Create(&addr).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	product := models.Product{ID: uuid.New(), SellerID: seller, Name: "singing bowl", IsActive: true}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant := models.ProductVariant{
		ID:            uuid.New(),
		ProductID:     product.ID,
		Price:         decimal.RequireFromString("35.00"),
		StockQuantity: 10,
		IsActive:      true,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	return &harness{
		handler: handler,
		db:      db,
		gateway: gateway,
		buyer:   buyer,
		seller:  seller,
		addr:    addr,
		variant: variant,
	}
}

func (h *harness) do(t *testing.T, method, path string, as uuid.UUID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if as != uuid.Nil {
		req.Header.Set("X-User-Id", as.String())
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, rec.Body.String())
	}
}

func TestBuyerJourney(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	// Empty cart view.
	rec := h.do(t, http.MethodGet, "/api/v1/cart", h.buyer, "buyer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cart fetch: %d %s", rec.Code, rec.Body.String())
	}

	// Add two of the variant.
	rec = h.do(t, http.MethodPost, "/api/v1/cart/items", h.buyer, "buyer", map[string]any{
		"variant_id": h.variant.ID,
		"quantity":   2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item: %d %s", rec.Code, rec.Body.String())
	}

	// Place the order.
	rec = h.do(t, http.MethodPost, "/api/v1/checkout", h.buyer, "buyer", map[string]any{
		"address_id": h.addr.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: %d %s", rec.Code, rec.Body.String())
	}
	var placed struct {
		Order struct {
			ID uuid.UUID `json:"ID"`
		} `json:"order"`
		ItemsSubtotal string `json:"items_subtotal"`
		GrandTotal    string `json:"grand_total"`
		SellerCount   int    `json:"seller_count"`
	}
	decodeData(t, rec, &placed)
	if placed.ItemsSubtotal != "70.00" || placed.GrandTotal != "170.00" || placed.SellerCount != 1 {
		t.Fatalf("checkout response: %+v", placed)
	}

	// Order list shows it.
	rec = h.do(t, http.MethodGet, "/api/v1/orders", h.buyer, "buyer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list orders: %d %s", rec.Code, rec.Body.String())
	}

	// Initiate payment, twice, same transaction.
	path := fmt.Sprintf("/api/v1/orders/%s/payments/esewa", placed.Order.ID)
	rec = h.do(t, http.MethodPost, path, h.buyer, "buyer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("initiate: %d %s", rec.Code, rec.Body.String())
	}
	var initiated struct {
		FormURL         string            `json:"form_url"`
		Fields          map[string]string `json:"fields"`
		TransactionUUID string            `json:"transaction_uuid"`
	}
	decodeData(t, rec, &initiated)
	if initiated.Fields["total_amount"] != "170.00" {
		t.Fatalf("signed total = %q", initiated.Fields["total_amount"])
	}

	rec = h.do(t, http.MethodPost, path, h.buyer, "buyer", nil)
	var again struct {
		TransactionUUID string `json:"transaction_uuid"`
	}
	decodeData(t, rec, &again)
	if again.TransactionUUID != initiated.TransactionUUID {
		t.Fatalf("repeat initiation minted a new transaction: %s vs %s", again.TransactionUUID, initiated.TransactionUUID)
	}

	// Gateway settles; callback arrives unauthenticated.
	h.gateway.status = esewa.StatusComplete
	h.gateway.refID = "0001TX5"
	fields := map[string]string{
		"transaction_code":   "000AWEO",
		"status":             "COMPLETE",
		"total_amount":       "170.00",
		"transaction_uuid":   initiated.TransactionUUID,
		"product_code":       "EPAYTEST",
		"signed_field_names": esewa.SignedFieldNames,
	}
	fields["signature"] = esewa.Sign(esewa.CanonicalMessage(fields, esewa.SignedFieldNames), testSecret)
	raw, _ := json.Marshal(fields)
	encoded := url.QueryEscape(base64.StdEncoding.EncodeToString(raw))

	rec = h.do(t, http.MethodGet, "/payments/esewa/callback?data="+encoded, uuid.Nil, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback: %d %s", rec.Code, rec.Body.String())
	}
	var summary struct {
		Status      string `json:"status"`
		OrderStatus string `json:"order_status"`
	}
	decodeData(t, rec, &summary)
	if summary.Status != "complete" || summary.OrderStatus != "completed" {
		t.Fatalf("summary = %+v", summary)
	}

	// Seller works the fulfillment.
	var orderFulfillment models.OrderFulfillment
	if err := h.db.First(&orderFulfillment, "order_id = ?", placed.Order.ID).Error; err != nil {
		t.Fatalf("load fulfillment: %v", err)
	}
	statusPath := fmt.Sprintf("/api/v1/seller/fulfillments/%s/status", orderFulfillment.ID)
	rec = h.do(t, http.MethodPost, statusPath, h.seller, "seller", map[string]any{"status": "accepted"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set status: %d %s", rec.Code, rec.Body.String())
	}

	// A buyer hitting the seller surface is rejected.
	rec = h.do(t, http.MethodPost, statusPath, h.buyer, "buyer", map[string]any{"status": "packed"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("buyer on seller route: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutInsufficientStockStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/checkout/buy-now", h.buyer, "buyer", map[string]any{
		"address_id": h.addr.ID,
		"variant_id": h.variant.ID,
		"quantity":   99,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestUnauthenticatedCheckout(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/checkout", uuid.Nil, "", map[string]any{
		"address_id": h.addr.ID,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", rec.Code, rec.Body.String())
	}
}

func TestForgedCallbackRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	fields := map[string]string{
		"status":             "COMPLETE",
		"total_amount":       "170.00",
		"transaction_uuid":   uuid.NewString(),
		"product_code":       "EPAYTEST",
		"signed_field_names": esewa.SignedFieldNames,
		"signature":          "bm90IGEgcmVhbCBzaWduYXR1cmU=",
	}
	raw, _ := json.Marshal(fields)
	encoded := url.QueryEscape(base64.StdEncoding.EncodeToString(raw))
	rec := h.do(t, http.MethodGet, "/payments/esewa/callback?data="+encoded, uuid.Nil, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged callback status = %d, want 401: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthLive(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health/live", uuid.Nil, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if rec.Header().Get("X-Kinmel-Env") != "dev" {
		t.Fatalf("env header missing")
	}
}
