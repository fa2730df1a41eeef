package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ultralytics/stars/internal/model"
	"github.com/ultralytics/stars/pkg/utils"
)

const pypiTimeout = 30 * time.Second

type pypiRecent struct {
	Data struct {
		LastDay   *int64 `json:"last_day"`
		LastWeek  *int64 `json:"last_week"`
		LastMonth *int64 `json:"last_month"`
	} `json:"data"`
}

type pepyProject struct {
	TotalDownloads *int64 `json:"total_downloads"`
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// FetchPackageStats reads recent downloads from pypistats.org and the
// all-time total from pepy.tech. Each half fails independently to zeroes.
func (c *Collector) FetchPackageStats(ctx context.Context, pkg string) model.PackageStats {
	stats := model.PackageStats{Package: pkg}

	recentURL := fmt.Sprintf("%s/packages/%s/recent",
		strings.TrimRight(c.endpoints.PyPIStats, "/"), url.PathEscape(pkg))
	if resp, err := c.client.Do(ctx, Request{URL: recentURL, Timeout: pypiTimeout}); err != nil {
		c.log.Warn("failed to fetch recent stats", zap.String("package", pkg), zap.Error(err))
		c.tracker.RecordError(ctx, SourcePyPI, fmt.Errorf("%s recent: %w", pkg, err))
	} else if err := checkStatus(http.MethodGet, recentURL, resp); err != nil {
		c.log.Warn("recent stats unavailable", zap.String("package", pkg), zap.Int("status", resp.StatusCode))
		c.tracker.RecordError(ctx, SourcePyPI, fmt.Errorf("%s recent: %w", pkg, err))
	} else {
		var recent pypiRecent
		if err := resp.DecodeJSON(&recent); err != nil {
			c.log.Warn("failed to decode recent stats", zap.String("package", pkg), zap.Error(err))
		} else {
			stats.LastDay = deref(recent.Data.LastDay)
			stats.LastWeek = deref(recent.Data.LastWeek)
			stats.LastMonth = deref(recent.Data.LastMonth)
		}
	}

	var headers map[string]string
	if c.spec.PepyAPIKey != "" {
		headers = map[string]string{"X-API-Key": c.spec.PepyAPIKey}
	}
	totalURL := fmt.Sprintf("%s/projects/%s",
		strings.TrimRight(c.endpoints.Pepy, "/"), url.PathEscape(pkg))
	if resp, err := c.client.Do(ctx, Request{URL: totalURL, Headers: headers, Timeout: pypiTimeout}); err != nil {
		c.log.Warn("failed to fetch total stats", zap.String("package", pkg), zap.Error(err))
		c.tracker.RecordError(ctx, SourcePyPI, fmt.Errorf("%s total: %w", pkg, err))
	} else if err := checkStatus(http.MethodGet, totalURL, resp); err != nil {
		c.log.Warn("total stats unavailable", zap.String("package", pkg), zap.Int("status", resp.StatusCode))
		c.tracker.RecordError(ctx, SourcePyPI, fmt.Errorf("%s total: %w", pkg, err))
	} else {
		var project pepyProject
		if err := resp.DecodeJSON(&project); err != nil {
			c.log.Warn("failed to decode total stats", zap.String("package", pkg), zap.Error(err))
		} else {
			stats.Total = deref(project.TotalDownloads)
		}
	}

	return stats
}

// CollectPyPI fetches every configured package, reconciles each with the
// previous pypi.json and writes the merged snapshot.
func (c *Collector) CollectPyPI(ctx context.Context) (*model.PyPIStats, error) {
	path := c.out.Path(utils.PyPIFile)
	existing, _ := ReadJSON[model.PyPIStats](path)
	oldPackages := indexPackages(existing.Packages)

	packages, rejected := validatePackages(c.spec.PyPIPackages)
	for _, p := range rejected {
		c.log.Warn("skipping invalid package name", zap.String("package", p))
	}

	stats := make([]model.PackageStats, 0, len(packages))
	restored := 0
	for _, pkg := range packages {
		fresh := c.FetchPackageStats(ctx, pkg)
		if old, ok := oldPackages[pkg]; ok {
			restored += len(SafeMerge(c.log, pkg, &fresh, &old, model.PackageCounterFields...))
		}
		stats = append(stats, fresh)

		// Rate limiting: 10 calls/min for free pepy.tech
		if err := c.sleep(ctx, c.pacing.Package); err != nil {
			return nil, err
		}
	}

	doc := &model.PyPIStats{
		Timestamp: utils.Timestamp(c.now()),
		Packages:  stats,
	}
	aggregatePyPI(doc)

	c.tracker.AddRestored(SourcePyPI, restored)
	if err := c.export(path, doc, len(doc.Packages)); err != nil {
		return nil, err
	}
	return doc, nil
}
