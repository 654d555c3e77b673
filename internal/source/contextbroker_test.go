package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/citypulse/streamd/internal/ierr"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*ContextBrokerClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := zap.NewDevelopment()

	return NewContextBrokerClient(logger, server.URL, server.Client()), server
}

func TestFetchEntitiesMapsDocuments(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ngsi-ld/v1/entities", r.URL.Path)
		assert.Equal(t, "Camera", r.URL.Query().Get("type"))
		assert.Equal(t, "keyValues", r.URL.Query().Get("options"))

		w.Header().Set("Content-Type", "application/ld+json")
		w.Write([]byte(`[
			{"id": "urn:ngsi-ld:Camera:001", "type": "Camera", "modifiedAt": "2026-08-30T10:00:00Z", "status": "active"},
			{"id": "urn:ngsi-ld:Camera:002", "type": "Camera", "observedAt": "2026-08-30T10:05:00Z"},
			{"type": "Camera", "status": "orphan"}
		]`))
	})

	entities, err := client.FetchEntities(context.Background(), "Camera")
	assert.NoError(t, err)
	assert.Len(t, entities, 2)

	assert.Equal(t, "urn:ngsi-ld:Camera:001", entities[0].Id)
	assert.Equal(t, "2026-08-30T10:00:00Z", entities[0].Revision)
	assert.Equal(t, "active", entities[0].Payload["status"])

	assert.Equal(t, "2026-08-30T10:05:00Z", entities[1].Revision)
}

func TestFetchEntitiesFingerprintsDocumentsWithoutTimestamp(t *testing.T) {
	body := `[{"id": "urn:ngsi-ld:Camera:001", "type": "Camera", "status": "active"}]`

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	first, err := client.FetchEntities(context.Background(), "Camera")
	assert.NoError(t, err)

	second, err := client.FetchEntities(context.Background(), "Camera")
	assert.NoError(t, err)

	// Same document, same fingerprint: no spurious change detection.
	assert.NotEmpty(t, first[0].Revision)
	assert.Equal(t, first[0].Revision, second[0].Revision)
}

func TestFetchEntitiesNonSuccessStatusIsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	})

	_, err := client.FetchEntities(context.Background(), "Camera")
	assert.Error(t, err)
	assert.Equal(t, ierr.ErrorCodeUnavailable, ierr.Code(err))
}

func TestFetchEntitiesMalformedBodyIsInvalidArgument(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "a list"`))
	})

	_, err := client.FetchEntities(context.Background(), "Camera")
	assert.Error(t, err)
	assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.Code(err))
}

func TestFetchEntitiesTimeoutIsDeadlineExceeded(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchEntities(ctx, "Camera")
	assert.Error(t, err)
	assert.Equal(t, ierr.ErrorCodeDeadlineExceeded, ierr.Code(err))
}

func TestFetchEntitiesConnectionRefusedIsUnavailable(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	client := NewContextBrokerClient(logger, "http://127.0.0.1:1", nil)

	_, err := client.FetchEntities(context.Background(), "Camera")
	assert.Error(t, err)
	assert.Equal(t, ierr.ErrorCodeUnavailable, ierr.Code(err))
}
