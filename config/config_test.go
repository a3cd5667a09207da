package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WingsOS/android-packages-modules-StatsD/matcher"
)

func validMatchers(n int) []matcher.AtomMatcher {
	m := make([]matcher.AtomMatcher, n)
	for i := range m {
		m[i] = matcher.AtomMatcher{Kind: matcher.KindSimple}
	}
	return m
}

func TestInitAcceptsMinimalValidConfiguration(t *testing.T) {
	c := &Configuration{
		Key:      NewConfigKey(1000, "app"),
		Matchers: validMatchers(1),
		Metrics: []MetricConfig{
			{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000},
		},
	}
	require.NoError(t, c.Init(c))
}

func TestInitRejectsWrongType(t *testing.T) {
	c := &Configuration{}
	err := c.Init("not a configuration")
	require.Error(t, err)
	var invErr *InvariantError
	assert.ErrorAs(t, err, &invErr)
}

func TestInitRejectsZeroMetricID(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics:  []MetricConfig{{ID: 0, WhatMatcher: 0, BucketSizeNs: 1000}},
	}
	require.Error(t, c.Init(c))
}

func TestInitRejectsDuplicateMetricIDs(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics: []MetricConfig{
			{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000},
			{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000},
		},
	}
	err := c.Init(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate metric id")
}

func TestInitRejectsOutOfRangeWhatMatcher(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics:  []MetricConfig{{ID: 1, WhatMatcher: 5, BucketSizeNs: 1000}},
	}
	require.Error(t, c.Init(c))
}

func TestInitRejectsNonPositiveBucketSize(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics:  []MetricConfig{{ID: 1, WhatMatcher: 0, BucketSizeNs: 0}},
	}
	require.Error(t, c.Init(c))
}

func TestInitRejectsUnknownConditionReference(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics: []MetricConfig{
			{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000, HasCondition: true, ConditionID: 99},
		},
	}
	err := c.Init(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown condition id")
}

func TestInitAcceptsKnownConditionReference(t *testing.T) {
	c := &Configuration{
		Matchers:   validMatchers(1),
		Conditions: []ConditionConfig{{ID: 99}},
		Metrics: []MetricConfig{
			{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000, HasCondition: true, ConditionID: 99},
		},
	}
	require.NoError(t, c.Init(c))
}

func TestInitRejectsDurationMetricMissingStartMatcher(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics: []MetricConfig{
			{ID: 1, Kind: KindDuration, WhatMatcher: 0, BucketSizeNs: 1000, StartMatcher: 7},
		},
	}
	require.Error(t, c.Init(c))
}

func TestInitRejectsAlertReferencingUnknownMetric(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics:  []MetricConfig{{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000}},
		Alerts:   []AlertConfig{{ID: 1, MetricID: 42, NumBuckets: 1}},
	}
	err := c.Init(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown metric id")
}

func TestInitRejectsAlertWithNonPositiveNumBuckets(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics:  []MetricConfig{{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000}},
		Alerts:   []AlertConfig{{ID: 1, MetricID: 1, NumBuckets: 0}},
	}
	require.Error(t, c.Init(c))
}

func TestInitRejectsRPCAScoreWithNonPositiveFrequencies(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics:  []MetricConfig{{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000}},
		Alerts:   []AlertConfig{{ID: 1, MetricID: 1, NumBuckets: 1, EnableRPCAScore: true}},
	}
	err := c.Init(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpca major/minor frequency")
}

func TestInitRejectsRPCAScoreWithIndivisibleFrequencies(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics:  []MetricConfig{{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000}},
		Alerts: []AlertConfig{{
			ID: 1, MetricID: 1, NumBuckets: 1,
			EnableRPCAScore: true, RPCAMajorFrequency: 5, RPCAMinorFrequency: 8,
		}},
	}
	err := c.Init(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "divisible")
}

func TestInitAcceptsValidRPCAScoreConfig(t *testing.T) {
	c := &Configuration{
		Matchers: validMatchers(1),
		Metrics:  []MetricConfig{{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000}},
		Alerts: []AlertConfig{{
			ID: 1, MetricID: 1, NumBuckets: 1,
			EnableRPCAScore: true, RPCAMajorFrequency: 4, RPCAMinorFrequency: 8,
		}},
	}
	require.NoError(t, c.Init(c))
}

func TestInitRejectsActivationOutOfRangeMatcher(t *testing.T) {
	c := &Configuration{
		Matchers:    validMatchers(1),
		Metrics:     []MetricConfig{{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000}},
		Activations: []ActivationConfig{{MetricID: 1, ActivationMatcher: 9, TTLSec: 60}},
	}
	require.Error(t, c.Init(c))
}

func TestInitRejectsNegativeTTL(t *testing.T) {
	c := &Configuration{
		Matchers:   validMatchers(1),
		Metrics:    []MetricConfig{{ID: 1, WhatMatcher: 0, BucketSizeNs: 1000}},
		Guardrails: Guardrails{TTLInSeconds: -1},
	}
	err := c.Init(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ttl_in_seconds")
}

func TestConfigStructReturnsZeroValue(t *testing.T) {
	raw := Configuration{}.ConfigStruct()
	c, ok := raw.(*Configuration)
	require.True(t, ok)
	assert.Empty(t, c.Metrics)
}

func TestConfigKeyStringFormat(t *testing.T) {
	k := NewConfigKey(1000, "my-config")
	assert.Equal(t, "1000:my-config", k.String())
}

func TestConfigKeyInstanceUniquePerMint(t *testing.T) {
	a := NewConfigKey(1000, "same-name")
	b := NewConfigKey(1000, "same-name")
	assert.NotEqual(t, a.Instance(), b.Instance())
}
