package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fixlocal/appcore/client"
)

const pathTranslations = "/translations/"

// VersionStamp is the opaque server issued identifier of a translation
// table snapshot. Servers send it as a string or a number; it is only
// ever compared for equality.
type VersionStamp string

func (v *VersionStamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}

	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*v = VersionStamp(asString)
		return nil
	}

	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err != nil {
		return fmt.Errorf("version stamp must be a string or number: %w", err)
	}

	if i, err := asNumber.Int64(); err == nil {
		*v = VersionStamp(strconv.FormatInt(i, 10))
		return nil
	}
	*v = VersionStamp(asNumber.String())
	return nil
}

type translationsEnvelope struct {
	Success bool              `json:"success"`
	Version VersionStamp      `json:"version"`
	Data    map[string]string `json:"data"`
	Message string            `json:"message,omitempty"`
}

// TranslationAPI wraps the translations endpoint of the backend.
type TranslationAPI struct {
	inv     client.Manager
	baseURL string
}

func NewTranslationAPI(inv client.Manager, baseURL string) *TranslationAPI {
	return &TranslationAPI{inv: inv, baseURL: baseURL}
}

// Fetch retrieves the authoritative string table and version stamp for a
// language. An empty version means the server does not stamp this table
// and caching optimizations are disabled for it.
func (t *TranslationAPI) Fetch(ctx context.Context, language string) (map[string]string, string, error) {
	resp, err := t.inv.Invoke(ctx, http.MethodGet, t.baseURL+pathTranslations+language, nil, nil)
	if err != nil {
		return nil, "", err
	}

	if resp.Unauthorized() {
		_ = resp.Close()
		return nil, "", fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	}

	var envelope translationsEnvelope
	if err = resp.Decode(ctx, &envelope); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !envelope.Success {
		return nil, "", fmt.Errorf("translations fetch for %q failed: %s", language, envelope.Message)
	}

	if envelope.Data == nil {
		return nil, "", fmt.Errorf("%w: missing data for language %q", ErrMalformedResponse, language)
	}

	return envelope.Data, string(envelope.Version), nil
}
