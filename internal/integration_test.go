package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-rfid-backend/config"
	"rental-rfid-backend/internal/api"
	"rental-rfid-backend/internal/db/dbtest"
	"rental-rfid-backend/internal/enrollment"
	"rental-rfid-backend/internal/ingest"
	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/model"
	"rental-rfid-backend/internal/mqttsub"
	"rental-rfid-backend/internal/notification"
	"rental-rfid-backend/internal/store"
)

// pushService stands in for a browser push service and counts deliveries per path.
type pushService struct {
	mu    sync.Mutex
	calls map[string]int
}

func (p *pushService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.calls[r.URL.Path]++
	p.mu.Unlock()
	if r.URL.Path == "/push/gone" {
		w.WriteHeader(http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (p *pushService) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

func browserKeys(t *testing.T) (string, string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()), base64.RawURLEncoding.EncodeToString(auth)
}

// TestReadToAlertLifecycle drives a tag from registration through a directional
// read to the resulting push alerts, checking the database at each step.
func TestReadToAlertLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Test Setup ---
	gormDB := dbtest.Open(t)
	appStore := store.New(gormDB)
	log := logger.NewNop()

	push := &pushService{calls: map[string]int{}}
	pushServer := httptest.NewServer(push)
	defer pushServer.Close()

	vapidPrivate, vapidPublic, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		Subscriber:      "ops@example.com",
		TTL:             60,
	}

	pool := notification.NewWorkerPool(2, 16, gormDB, webpushOptions, log)
	pool.Start(ctx)

	pipeline := ingest.NewPipeline(appStore, ingest.Options{
		APIKey:           "k",
		SystemActor:      "system:test-gate",
		AlertUnknownTags: true,
		AlertMovements:   true,
	}, pool, log)
	handler := api.NewHandler(appStore, pipeline, enrollment.NewManager(appStore, log), webpushOptions, "X-User-ID", log)
	router := api.NewRouter(&config.ServerConfig{
		RateLimitPerSec:  100,
		RateLimitBurst:   100,
		CacheTTL:         time.Minute,
		OperatorIDHeader: "X-User-ID",
	}, handler, nil, log)

	call := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "clerk-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// 1. Two browsers subscribe: one to movements only, one to everything.
	for path, kinds := range map[string][]model.AlertKind{
		"/push/moves": {model.AlertRfidMovement},
		"/push/gone":  nil,
	} {
		p256dh, auth := browserKeys(t)
		w := call(http.MethodPut, "/api/subscriptions", map[string]interface{}{
			"endpoint": pushServer.URL + path, "p256dh": p256dh, "auth": auth, "kinds": kinds,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	// 2. A rented item is out; its tag is registered and enrolled in one call.
	item := dbtest.SeedItem(t, gormDB, model.ItemStatusOut)
	w := call(http.MethodPost, "/api/rfid/tags", map[string]string{"epc": "3034-F8A1", "inventoryItemId": item.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// 3. The item comes back through the dock door.
	w = call(http.MethodPost, "/api/rfid/read", map[string]interface{}{
		"readerId": "dock-1", "readerName": "Dock door", "apiKey": "k",
		"reads": []map[string]interface{}{{"epc": "3034f8a1", "direction": "IN", "rssi": -48.0}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res ingest.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].InventoryUpdated)
	assert.False(t, res.Results[0].IsNew)

	var refreshed model.InventoryItem
	require.NoError(t, gormDB.First(&refreshed, "id = ?", item.ID).Error)
	assert.Equal(t, model.ItemStatusIn, refreshed.Status)

	var movement model.InventoryMovement
	require.NoError(t, gormDB.Where("type = ?", model.MovementRFID).First(&movement).Error)
	assert.Equal(t, "system:test-gate", movement.PerformedBy)
	assert.Contains(t, string(movement.Metadata), `"readerName":"Dock door"`)

	// Both browsers get the movement alert; the expired one is removed.
	assert.Eventually(t, func() bool {
		return push.count("/push/moves") == 1 && push.count("/push/gone") == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		var n int64
		gormDB.Model(&model.PushSubscription{}).Count(&n)
		return n == 1
	}, 5*time.Second, 20*time.Millisecond)

	// 4. A stray tag nobody registered shows up; only the movement subscriber is
	// left and it does not want unknown-tag alerts.
	w = call(http.MethodPost, "/api/rfid/read", map[string]interface{}{
		"readerId": "dock-1", "apiKey": "k", "reads": []map[string]interface{}{{"epc": "FFFF0001"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = call(http.MethodGet, "/api/rfid/tags/unknown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var unknown struct {
		Tags []struct {
			EPC            string `json:"epc"`
			DetectionCount int64  `json:"detectionCount"`
		} `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &unknown))
	require.Len(t, unknown.Tags, 1)
	assert.Equal(t, "FFFF0001", unknown.Tags[0].EPC)
	assert.EqualValues(t, 1, unknown.Tags[0].DetectionCount)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, push.count("/push/moves"))
}

// TestMQTTBatchRefreshesCachedListings checks that reads arriving over MQTT are
// visible through the cached HTTP listings straight away.
func TestMQTTBatchRefreshesCachedListings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	gormDB := dbtest.Open(t)
	appStore := store.New(gormDB)
	log := logger.NewNop()

	serverCfg := &config.ServerConfig{
		RateLimitPerSec:  100,
		RateLimitBurst:   100,
		CacheTTL:         time.Hour,
		OperatorIDHeader: "X-User-ID",
	}
	responses := api.NewResponseCache(serverCfg.CacheTTL)

	pipeline := ingest.NewPipeline(appStore, ingest.Options{APIKey: "k"}, nil, log)
	handler := api.NewHandler(appStore, pipeline, enrollment.NewManager(appStore, log), &webpush.Options{}, "X-User-ID", log)
	router := api.NewRouter(serverCfg, handler, responses, log)
	subscriber := mqttsub.New(config.MQTTConfig{QoS: 1}, pipeline, responses, log)

	unknownTags := func() (int, string) {
		req := httptest.NewRequest(http.MethodGet, "/api/rfid/tags/unknown", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Tags []json.RawMessage `json:"tags"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return len(body.Tags), w.Header().Get("X-Cache")
	}

	n, _ := unknownTags()
	require.Zero(t, n)
	n, hit := unknownTags()
	require.Zero(t, n)
	require.Equal(t, "HIT", hit, "the listing is served from cache")

	reply := subscriber.Handle(ctx, "rfid/readers/gate-2/reads", []byte(`{"apiKey":"k","reads":[{"epc":"AA01"},{"epc":"AA02"}]}`))
	var res ingest.BatchResult
	require.NoError(t, json.Unmarshal(reply, &res))
	require.True(t, res.Success)

	n, hit = unknownTags()
	assert.Equal(t, 2, n)
	assert.Empty(t, hit)
}
