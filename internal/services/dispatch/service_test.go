package dispatch

import (
	"context"
	"testing"

	"github.com/RadiaWorks/ScanGate/internal/barcode"
	"github.com/RadiaWorks/ScanGate/internal/correlation"
	invfake "github.com/RadiaWorks/ScanGate/internal/integrations/inventory/fake"
	"github.com/RadiaWorks/ScanGate/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	manufWrites []string
	saleWrites  []string
	enqueued    []string

	writeOK  bool
	writeErr error
}

func (f *fakeRepo) WriteManufacturingDate(ctx context.Context, serial string) (bool, error) {
	f.manufWrites = append(f.manufWrites, serial)
	return f.writeOK, f.writeErr
}

func (f *fakeRepo) WriteSaleDate(ctx context.Context, serial string) (bool, error) {
	f.saleWrites = append(f.saleWrites, serial)
	return f.writeOK, f.writeErr
}

func (f *fakeRepo) EnqueueScan(ctx context.Context, serial, barcodeType, scannerID string) error {
	f.enqueued = append(f.enqueued, serial)
	return nil
}

func newTestService(repo *fakeRepo, inv *invfake.Client) (*Service, *correlation.Store) {
	store := correlation.New(correlation.DefaultTimeout, nil)
	v := barcode.NewValidator(barcode.DefaultRules()...)
	s := New(repo, store, v, inv, []string{"production/ready", "sale/ready"}, "RC-", 13)
	return s, store
}

func TestHandle_ProductionReady_WritesManufacturingOnce(t *testing.T) {
	repo := &fakeRepo{writeOK: true}
	s, _ := newTestService(repo, nil)

	resp := s.Handle(context.Background(), "production/ready", `{"msg":"RC-102-011243","id":"dev1"}`, "")
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "RC-102-011243", resp.Body["barcode"])
	require.Equal(t, "manufacturing", resp.Body["operation"])
	require.Equal(t, []string{"RC-102-011243"}, repo.manufWrites)
	require.Empty(t, repo.saleWrites)
}

func TestHandle_UnauthorizedTopic_NoSideEffects(t *testing.T) {
	repo := &fakeRepo{writeOK: true}
	s, store := newTestService(repo, nil)

	resp := s.Handle(context.Background(), "admin/ready", `{"msg":"RC-102-011243","id":"dev1"}`, "")
	require.Equal(t, 403, resp.Status)
	require.Equal(t, "Topic not allowed", resp.Body["error"])
	require.Empty(t, repo.manufWrites)
	require.False(t, store.HasPending("dev1"))
}

func TestHandle_TopicPrefixAllowed(t *testing.T) {
	repo := &fakeRepo{writeOK: true}
	s, _ := newTestService(repo, nil)

	resp := s.Handle(context.Background(), "production", `{"msg":"RC-102-011243","id":"dev1"}`, "")
	require.Equal(t, 200, resp.Status)
}

func TestHandle_SaleReady_RunsSaleFlow(t *testing.T) {
	repo := &fakeRepo{writeOK: true}
	inv := &invfake.Client{}
	s, _ := newTestService(repo, inv)

	resp := s.Handle(context.Background(), "sale/ready", `{"msg":"RC-102-011243","id":"dev1"}`, "dock-3")
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "sale", resp.Body["operation"])
	require.Equal(t, []string{"RC-102-011243"}, repo.saleWrites)
	require.Equal(t, []string{"RC-102-011243"}, repo.enqueued)
	require.Equal(t, []string{"RC-102-011243"}, inv.Serials)
}

func TestHandle_SaleFlow_InventoryFailureDoesNotAffectResponse(t *testing.T) {
	repo := &fakeRepo{writeOK: true}
	inv := &invfake.Client{Err: errors.New("inventory down")}
	s, _ := newTestService(repo, inv)

	resp := s.Handle(context.Background(), "sale/ready", `{"msg":"RC-102-011243","id":"dev1"}`, "")
	require.Equal(t, 200, resp.Status)
}

func TestHandle_WriteFailure_500(t *testing.T) {
	repo := &fakeRepo{writeOK: false}
	s, _ := newTestService(repo, nil)

	resp := s.Handle(context.Background(), "production/ready", `{"msg":"RC-102-011243","id":"dev1"}`, "")
	require.Equal(t, 500, resp.Status)
	require.Equal(t, "Database write failed", resp.Body["error"])
}

func TestHandle_WriteError_TreatedAsFailure(t *testing.T) {
	repo := &fakeRepo{writeOK: true, writeErr: errors.New("db down")}
	s, _ := newTestService(repo, nil)

	resp := s.Handle(context.Background(), "production/ready", `{"msg":"RC-102-011243","id":"dev1"}`, "")
	require.Equal(t, 500, resp.Status)
}

func TestHandle_WarehouseFirstSighting_RegistersPending(t *testing.T) {
	repo := &fakeRepo{}
	s, store := newTestService(repo, nil)

	payload := `{"msg":"FBA order for Coventry, West Midlands at Lyons Park","id":"dev7"}`
	resp := s.Handle(context.Background(), "sale/ready", payload, "")
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "pending", resp.Body["status"])
	require.Equal(t, string(models.OrderTypeFedExWarehouse), resp.Body["order_type"])
	require.Equal(t, 10, resp.Body["timeout_seconds"])
	require.True(t, store.HasPending("dev7"))
}

func TestHandle_UPSRegisterThenResolve(t *testing.T) {
	repo := &fakeRepo{}
	s, store := newTestService(repo, nil)

	resp := s.Handle(context.Background(), "sale/ready", `{"msg":"check 37040","id":"dev2"}`, "")
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "pending", resp.Body["status"])

	resp = s.Handle(context.Background(), "sale/ready", `{"msg":"1Z370400000001","id":"dev2"}`, "")
	require.Equal(t, 200, resp.Status)
	require.Contains(t, resp.Body["message"], "1Z370400000001")
	require.False(t, store.HasPending("dev2"))
}

func TestHandle_TrackingCodeResolvesWarehouseOrder(t *testing.T) {
	repo := &fakeRepo{}
	s, store := newTestService(repo, nil)
	store.Register("dev3", models.OrderTypeNonFedExWarehouse, nil)

	resp := s.Handle(context.Background(), "sale/ready", `{"msg":"ORDER-REF-994413220155","id":"dev3"}`, "")
	require.Equal(t, 200, resp.Status)
	require.Contains(t, resp.Body["message"], "994413220155")
}

func TestHandle_IncorrectFormatRecoveryPath(t *testing.T) {
	repo := &fakeRepo{}
	s, store := newTestService(repo, nil)
	store.Register("dev4", models.OrderTypeUPSCode, nil)

	// 13 chars with RC- prefix but a bad decomposition classifies as
	// incorrect_format; the pending id rescues it as a resolution.
	resp := s.Handle(context.Background(), "sale/ready", `{"msg":"RC-12-3456789","id":"dev4"}`, "")
	require.Equal(t, 200, resp.Status)
	require.False(t, store.HasPending("dev4"))
}

func TestHandle_IncorrectFormatWithoutPending_400(t *testing.T) {
	repo := &fakeRepo{}
	s, _ := newTestService(repo, nil)

	resp := s.Handle(context.Background(), "sale/ready", "not json at all", "")
	require.Equal(t, 400, resp.Status)
	require.Equal(t, "Invalid payload format", resp.Body["error"])
}

func TestHandle_InvalidRCFormat_400(t *testing.T) {
	repo := &fakeRepo{}
	s, _ := newTestService(repo, nil)

	raw := "RC-" + "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	require.Len(t, raw, 39)
	resp := s.Handle(context.Background(), "production/ready", raw, "")
	require.Equal(t, 400, resp.Status)
	require.Contains(t, resp.Body["error"], "Invalid RC-xxx-xxxxxx format")
}

func TestHandle_ShortMsgNoPending_400(t *testing.T) {
	repo := &fakeRepo{}
	s, _ := newTestService(repo, nil)

	resp := s.Handle(context.Background(), "sale/ready", `{"msg":"short","id":"nobody"}`, "")
	require.Equal(t, 400, resp.Status)
}
