package observability

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type ruleFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

// Series the alert expressions may reference, including the worker's job metrics.
var knownSeries = map[string]bool{
	"clientdoc_http_requests_total":           true,
	"clientdoc_http_request_duration_seconds": true,
	"clientdoc_bundles_total":                 true,
	"clientdoc_bundle_duration_seconds":       true,
	"clientdoc_import_groups_total":           true,
	"clientdoc_jobs_total":                    true,
	"clientdoc_jobs_failures_total":           true,
	"clientdoc_jobs_skipped_total":            true,
	"clientdoc_jobs_in_flight":                true,
	"clientdoc_job_duration_seconds":          true,
}

var seriesName = regexp.MustCompile(`clientdoc_[a-z_]+`)

func loadRules(t *testing.T) map[string]alertRule {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "clientdoc.yml"))
	require.NoError(t, err)

	var file ruleFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.Len(t, file.Groups, 1)
	require.Equal(t, "clientdoc", file.Groups[0].Name)

	rules := make(map[string]alertRule, len(file.Groups[0].Rules))
	for _, rule := range file.Groups[0].Rules {
		rules[rule.Alert] = rule
	}
	return rules
}

func TestAlertRules(t *testing.T) {
	rules := loadRules(t)

	expected := map[string]struct {
		severity string
		runbook  string
	}{
		"HighErrorRate":         {severity: "critical", runbook: "docs/runbook-ops.md#high-error-rate"},
		"BundleFailures":        {severity: "warning", runbook: "docs/runbook-ops.md#bundle-failures"},
		"ImportGroupFailures":   {severity: "warning", runbook: "docs/runbook-ops.md#import-failures"},
		"BulkImportJobFailures": {severity: "warning", runbook: "docs/runbook-ops.md#bulk-import-job"},
	}
	require.Len(t, rules, len(expected))

	for name, want := range expected {
		rule, ok := rules[name]
		require.True(t, ok, "missing rule %s", name)
		assert.Equal(t, want.severity, rule.Labels["severity"], name)
		assert.Equal(t, want.runbook, rule.Annotations["runbook"], name)
		assert.NotEmpty(t, rule.Annotations["summary"], name)
		assert.NotEmpty(t, rule.Annotations["description"], name)
		assert.NotEmpty(t, rule.For, name)
	}
}

func TestAlertExpressionsUseRegisteredSeries(t *testing.T) {
	for name, rule := range loadRules(t) {
		series := seriesName.FindAllString(rule.Expr, -1)
		require.NotEmpty(t, series, name)
		for _, s := range series {
			assert.True(t, knownSeries[s], "%s references unknown series %s", name, s)
		}
	}
	assert.Contains(t, loadRules(t)["BundleFailures"].Expr, `outcome="failure"`)
	assert.Contains(t, loadRules(t)["ImportGroupFailures"].Expr, `outcome="failed"`)
}
