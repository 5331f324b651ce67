package erpcall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"askerp/internal/company"
)

// Bootstrap is the ERP's company snapshot: the aggregate plus its
// projects, suppliers and modules.
type Bootstrap struct {
	Company   map[string]any     `json:"company"`
	Projects  []company.Project  `json:"projects"`
	Suppliers []company.Supplier `json:"suppliers"`
	Modules   []company.Module   `json:"modules"`
}

type bootstrapEnvelope struct {
	Success bool      `json:"success"`
	Data    Bootstrap `json:"data"`
	Error   string    `json:"error,omitempty"`
}

// FetchBootstrap pulls the company snapshot from the ERP bootstrap
// endpoint. This is the orchestrator's source for the project list.
func (c *Caller) FetchBootstrap(ctx context.Context, companyID string) (Bootstrap, error) {
	q := url.Values{}
	q.Set("company_id", companyID)
	full := c.baseURL + "/bootstrap?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return Bootstrap{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if classify(err) == FailureTimeout {
			return Bootstrap{}, fmt.Errorf("bootstrap timeout after %s", c.timeout)
		}
		return Bootstrap{}, fmt.Errorf("bootstrap fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Bootstrap{}, fmt.Errorf("bootstrap HTTP error %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Bootstrap{}, err
	}
	var env bootstrapEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Bootstrap{}, fmt.Errorf("bootstrap parse: %w", err)
	}
	if !env.Success {
		if env.Error == "" {
			env.Error = "unknown error"
		}
		return Bootstrap{}, fmt.Errorf("bootstrap: %s", env.Error)
	}
	c.log.Info().Str("company", companyID).Int("projects", len(env.Data.Projects)).Msg("bootstrap fetched")
	return env.Data, nil
}

// SyncCompany refreshes the durable company record from a bootstrap
// snapshot.
func SyncCompany(ctx context.Context, store *company.Store, companyID string, b Bootstrap) (company.Company, error) {
	name, _ := b.Company["name"].(string)
	c := company.Company{
		CompanyID:    companyID,
		Name:         name,
		Projects:     b.Projects,
		Suppliers:    b.Suppliers,
		Modules:      b.Modules,
		LastSyncedAt: time.Now().UTC(),
	}
	if prev, ok := store.Get(ctx, companyID); ok {
		c.DefaultProjectID = prev.DefaultProjectID
	}
	return c, store.Put(ctx, c)
}

// HealthCheck probes the ERP base URL with a short timeout.
func (c *Caller) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
