package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/citypulse/streamd/internal/entity"
	"github.com/citypulse/streamd/internal/ierr"
	"go.uber.org/zap"
)

const fetchLimit = 1000

// ContextBrokerClient fetches entity collections from an NGSI-LD context
// broker (Orion-LD and compatible) in keyValues representation.
type ContextBrokerClient struct {
	logger     *zap.Logger
	baseURL    string
	httpClient *http.Client
}

func NewContextBrokerClient(
	logger *zap.Logger,
	baseURL string,
	httpClient *http.Client,
) *ContextBrokerClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &ContextBrokerClient{
		logger,
		baseURL,
		httpClient,
	}
}

func (c *ContextBrokerClient) FetchEntities(ctx context.Context, sourceType string) ([]entity.Entity, error) {
	query := url.Values{}
	query.Set("type", sourceType)
	query.Set("options", "keyValues")
	query.Set("limit", fmt.Sprintf("%d", fetchLimit))

	endpoint := c.baseURL + "/ngsi-ld/v1/entities?" + query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeInternal, err)
	}

	request.Header.Set("Accept", "application/ld+json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ierr.New(ierr.ErrorCodeDeadlineExceeded, err)
		}

		return nil, ierr.New(ierr.ErrorCodeUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, ierr.New(ierr.ErrorCodeUnavailable,
			fmt.Errorf("context broker returned status %d for type %s", response.StatusCode, sourceType))
	}

	var documents []map[string]any
	if err := json.NewDecoder(response.Body).Decode(&documents); err != nil {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	entities := make([]entity.Entity, 0, len(documents))
	for _, document := range documents {
		id, ok := document["id"].(string)
		if !ok || id == "" {
			c.logger.Warn("skipping upstream entity without id",
				zap.String("sourceType", sourceType))

			continue
		}

		entities = append(entities, entity.Entity{
			Id:       id,
			Revision: revisionOf(document),
			Payload:  document,
		})
	}

	return entities, nil
}

// revisionOf picks the change-detection marker for a document: the
// broker's modification timestamp when present, otherwise a fingerprint
// of the whole document so attribute changes are still noticed.
func revisionOf(document map[string]any) string {
	for _, field := range []string{"modifiedAt", "observedAt", "dateModified"} {
		if value, ok := document[field].(string); ok && value != "" {
			return value
		}
	}

	fingerprint, err := json.Marshal(document)
	if err != nil {
		return ""
	}

	return string(fingerprint)
}
