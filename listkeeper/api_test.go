package listkeeper

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIRoot(t *testing.T) {
	lk, _ := newTestListKeeper(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	lk.api.httpServer.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bot is running!", w.Body.String())
}

func TestAPIStatus(t *testing.T) {
	lk, _ := newTestListKeeper(t)
	lk.mutator.UpsertAuto("Frostbite", "Aeldra")
	lk.startedAt = time.Now().Add(-time.Minute)
	lk.discord.connected.Store(true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	lk.api.httpServer.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["connected"])
	assert.Equal(t, float64(1), status["entries"])
	assert.Equal(t, float64(1), status["channels"])
	assert.Contains(t, status, "uptime")
	assert.Contains(t, status, "version")
}

func TestAPIStatusConcurrentWithMutations(t *testing.T) {
	lk, _ := newTestListKeeper(t)
	handler := lk.api.httpServer.Handler

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			lk.mu.Lock()
			lk.mutator.UpsertAuto(fmt.Sprintf("Item-%03d", i), "Aeldra")
			lk.mu.Unlock()
		}
	}()

	statusCodes := make([]int, 0, 100)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			handler.ServeHTTP(w, req)
			statusCodes = append(statusCodes, w.Code)
		}
	}()

	wg.Wait()
	for _, code := range statusCodes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, 100, lk.store.Len())
}
