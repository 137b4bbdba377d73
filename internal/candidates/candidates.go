// Package candidates loads the pool of activities the planner can suggest.
package candidates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"itincal/internal/duration"
	appLog "itincal/internal/log"
	"itincal/internal/model"
)

// Source supplies candidate activities.
type Source interface {
	Load(ctx context.Context) ([]model.CandidateActivity, error)
}

// Static is a fixed in-memory pool.
type Static []model.CandidateActivity

// Load returns a copy of the pool.
func (s Static) Load(context.Context) ([]model.CandidateActivity, error) {
	out := make([]model.CandidateActivity, len(s))
	copy(out, s)
	return out, nil
}

// dataset accepts both a bare list and {"activities": [...]}.
type dataset struct {
	Activities []model.CandidateActivity `json:"activities" yaml:"activities"`
}

// FileSource reads a YAML or JSON activity dataset from disk. The format is
// chosen by extension; anything other than .json is read as YAML.
type FileSource struct {
	Path string
}

// Load reads and normalizes the dataset.
func (f FileSource) Load(ctx context.Context) ([]model.CandidateActivity, error) {
	if f.Path == "" {
		return nil, errors.New("candidates file path is empty")
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}

	var list []model.CandidateActivity
	if strings.EqualFold(filepath.Ext(f.Path), ".json") {
		list, err = decodeJSON(data)
	} else {
		list, err = decodeYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	return Normalize(list, "file:"+filepath.Base(f.Path)), nil
}

func decodeJSON(data []byte) ([]model.CandidateActivity, error) {
	var list []model.CandidateActivity
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var ds dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, err
	}
	return ds.Activities, nil
}

func decodeYAML(data []byte) ([]model.CandidateActivity, error) {
	var list []model.CandidateActivity
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var ds dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, err
	}
	return ds.Activities, nil
}

// WebhookSource asks a recommendation service for activities. The service
// answers a GET with a JSON list or {"activities": [...]}.
type WebhookSource struct {
	URL    string
	Client *http.Client
}

// NewWebhookSource returns a WebhookSource with the given per-call timeout
// (15s when zero).
func NewWebhookSource(url string, timeout time.Duration) *WebhookSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Load calls the webhook and normalizes its answer.
func (w *WebhookSource) Load(ctx context.Context) ([]model.CandidateActivity, error) {
	if w.URL == "" {
		return nil, errors.New("webhook URL is empty")
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		appLog.Error("candidates webhook failed", err, "url", appLog.RedactURL(w.URL))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("candidates webhook: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	list, err := decodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("candidates webhook: %w", err)
	}
	return Normalize(list, "webhook"), nil
}

// Multi merges several sources. Earlier sources win on duplicate IDs; a
// failing source is logged and skipped unless all of them fail.
type Multi []Source

// Load queries every source in order.
func (m Multi) Load(ctx context.Context) ([]model.CandidateActivity, error) {
	var (
		out  []model.CandidateActivity
		seen = map[string]struct{}{}
		errs []error
	)
	for _, src := range m {
		list, err := src.Load(ctx)
		if err != nil {
			errs = append(errs, err)
			appLog.Warn("candidate source failed", "err", err)
			continue
		}
		for _, a := range list {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
	}
	if len(errs) > 0 && len(errs) == len(m) {
		return nil, errors.Join(errs...)
	}
	if out == nil {
		out = []model.CandidateActivity{}
	}
	return out, nil
}

// Normalize drops entries without a title, assigns missing IDs, marks
// coordinates present when a dataset gave lat/lng without has_coords and
// logs durations that will fall back to the default.
func Normalize(list []model.CandidateActivity, origin string) []model.CandidateActivity {
	out := make([]model.CandidateActivity, 0, len(list))
	for i, a := range list {
		a.Title = strings.TrimSpace(a.Title)
		if a.Title == "" {
			appLog.Warn("candidate without title dropped", "origin", origin, "index", i)
			continue
		}
		if a.ID == "" {
			a.ID = fmt.Sprintf("%s#%d", origin, i)
		}
		if !a.Location.HasCoords && (a.Location.Latitude != 0 || a.Location.Longitude != 0) {
			a.Location.HasCoords = true
		}
		if _, ok := duration.Parse(a.Duration); !ok {
			appLog.Warn("candidate duration not understood, using default",
				"id", a.ID, "duration", a.Duration, "default_minutes", duration.DefaultMinutes)
		}
		out = append(out, a)
	}
	return out
}

// Store receives refreshed activities.
type Store interface {
	Upsert(ctx context.Context, activities []model.CandidateActivity) error
}

// Refresh loads src and upserts the result into dst.
func Refresh(ctx context.Context, src Source, dst Store) (int, error) {
	list, err := src.Load(ctx)
	if err != nil {
		return 0, err
	}
	if err := dst.Upsert(ctx, list); err != nil {
		return 0, err
	}
	appLog.Info("candidates refreshed", "count", len(list))
	return len(list), nil
}
