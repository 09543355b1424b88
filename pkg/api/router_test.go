package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/wallpad/pkg/api/types"
	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/device/schema"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
	"github.com/urmzd/wallpad/pkg/transport"
)

const waitFor = 2 * time.Second

// newBusRouter serves a master that has learned a light (dim max 7) and a
// gas valve from a simulated slave.
func newBusRouter(t *testing.T) (*Router, *device.Network) {
	t.Helper()
	cfg := device.DefaultNetworkConfig()
	cfg.PollInterval = 0
	cfg.RepeatInterval = 50 * time.Millisecond
	master := device.NewNetwork(cfg, transport.NewStreamProcessor(transport.DefaultConfig()), nil)
	cfg.Mode = device.ModeSlave
	slave := device.NewNetwork(cfg, transport.NewStreamProcessor(transport.DefaultConfig()), nil)

	a, b := transport.NewPipePair()
	require.NoError(t, slave.Start(b))
	require.NoError(t, master.Start(a))
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})

	for _, s := range []string{"0E:11", "12:01"} {
		addr, err := ksx4506.ParseAddress(s)
		require.NoError(t, err)
		sd, err := slave.AddDevice(addr, "")
		require.NoError(t, err)
		if addr.Class == ksx4506.ClassLight {
			require.NoError(t, sd.SetProperties(property.Int(codec.PropLightDimMax, 7)))
		}
		md, err := master.AddDevice(addr, "")
		require.NoError(t, err)
		require.NoError(t, md.Refresh())
		require.Eventually(t, func() bool { return md.Variant().Learned() }, waitFor, 5*time.Millisecond)
	}

	return NewRouter(master, master, schema.NewValidator()), master
}

func do(t *testing.T, r *Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	r, _ := newBusRouter(t)
	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	health := decode[types.HealthResponse](t, w)
	assert.Equal(t, "connected", health.Bus)
	assert.Equal(t, 2, health.Devices)
	assert.Equal(t, 2, health.Online)

	null := NewRouter(device.NewNullController(), device.NewNullEventSubscriber(), schema.NewValidator())
	w = do(t, null, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode[types.HealthResponse](t, w).Status)
}

func TestDevices_ListAndGet(t *testing.T) {
	r, _ := newBusRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[types.ListDevicesResponse](t, w)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "0E:11", list.Devices[0].Address)
	assert.Equal(t, "light", list.Devices[0].Type)
	assert.NotEmpty(t, list.Devices[0].StateSchema)
	assert.Equal(t, "gas_valve", list.Devices[1].Type)

	w = do(t, r, http.MethodGet, "/api/v1/devices/light_11", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dev := decode[types.DeviceResponse](t, w).Device
	assert.Equal(t, "0E:11", dev.Address)
	assert.Equal(t, float64(7), dev.State[codec.PropLightDimMax])

	w = do(t, r, http.MethodGet, "/api/v1/devices/0E:14", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[types.ErrorResponse](t, w).Error)
}

func TestControl_SetStateConfirms(t *testing.T) {
	r, _ := newBusRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/devices/0E:11/state", map[string]any{
		codec.PropLightOn: true, codec.PropLightDimLevel: 4,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode[types.StateResponse](t, w).State[codec.PropLightOn])

	require.Eventually(t, func() bool {
		w := do(t, r, http.MethodGet, "/api/v1/devices/0E:11/state", nil)
		st := decode[types.StateResponse](t, w)
		return st.State[codec.PropLightOn] == true && st.State[codec.PropLightDimLevel] == float64(4)
	}, waitFor, 10*time.Millisecond)
}

func TestControl_SetStateRejectsOutOfSchema(t *testing.T) {
	r, _ := newBusRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/devices/0E:11/state", map[string]any{codec.PropLightDimLevel: 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[types.ErrorResponse](t, w)
	assert.Equal(t, "validation_error", resp.Error)
	assert.Equal(t, []string{"/" + codec.PropLightDimLevel}, resp.Fields)

	w = do(t, r, http.MethodPost, "/api/v1/devices/0E:11/state", map[string]any{"light.count": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/devices/12:01/state", map[string]any{codec.PropGasAlarm: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/0E:11/state", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDevices_RenameAndRemove(t *testing.T) {
	r, _ := newBusRouter(t)

	w := do(t, r, http.MethodPatch, "/api/v1/devices/0E:11", types.RenameDeviceRequest{Name: "hall"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hall", decode[types.DeviceResponse](t, w).Device.Name)

	w = do(t, r, http.MethodPatch, "/api/v1/devices/12:01", types.RenameDeviceRequest{Name: "hall"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPatch, "/api/v1/devices/12:01", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodDelete, "/api/v1/devices/hall", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodGet, "/api/v1/devices/0E:11", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDiscovery(t *testing.T) {
	r, master := newBusRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/discovery/start", types.StartDiscoveryRequest{DurationSeconds: 700})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/discovery/start", types.StartDiscoveryRequest{DurationSeconds: 30})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, decode[types.StartDiscoveryResponse](t, w).DurationSeconds)
	assert.True(t, master.Discovering())

	w = do(t, r, http.MethodPost, "/api/v1/discovery/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, master.Discovering())

	null := NewRouter(device.NewNullController(), device.NewNullEventSubscriber(), schema.NewValidator())
	w = do(t, null, http.MethodPost, "/api/v1/discovery/start", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMiddleware_RequestIDAndCORS(t *testing.T) {
	r := NewRouter(device.NewNullController(), device.NewNullEventSubscriber(), schema.NewValidator(),
		WithAllowedOrigins([]string{"http://panel.local"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://panel.local")
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, "http://panel.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = do(t, r, http.MethodPost, "/api/v1/devices/0E:11/state", map[string]any{codec.PropLightOn: true})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "bus_disconnected", decode[types.ErrorResponse](t, w).Error)
}

func TestSwaggerDocs(t *testing.T) {
	r := NewRouter(device.NewNullController(), device.NewNullEventSubscriber(), schema.NewValidator())

	w := do(t, r, http.MethodGet, "/docs", nil)
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/swagger/index.html", w.Header().Get("Location"))

	w = do(t, r, http.MethodGet, "/swagger/doc.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var doc struct {
		Info     struct{ Title string } `json:"info"`
		BasePath string                 `json:"basePath"`
		Paths    map[string]any         `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "Wallpad API", doc.Info.Title)
	assert.Equal(t, "/api/v1", doc.BasePath)
	for _, p := range []string{"/health", "/devices", "/devices/{id}", "/devices/{id}/state",
		"/discovery/start", "/discovery/stop", "/discovery/events"} {
		assert.Contains(t, doc.Paths, p)
	}
}
