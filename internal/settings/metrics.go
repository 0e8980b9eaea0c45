// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package settings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// settingsMutations tracks settings mutations by operation and outcome
	settingsMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testinsight_settings_mutations_total",
			Help: "Total settings mutations by operation (update, reset, restore) and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// settingsValidationFailures tracks validation rejections by field
	settingsValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testinsight_settings_validation_failures_total",
			Help: "Total validation failures by field path",
		},
		[]string{"field"},
	)

	// connectionTests tracks connection test runs by service and outcome
	connectionTests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testinsight_connection_tests_total",
			Help: "Total connection tests by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	// backupsCreated tracks backup files written
	backupsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "testinsight_settings_backups_created_total",
			Help: "Total settings backups written",
		},
	)

	// cacheInvalidations tracks settings cache invalidations from file events
	cacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "testinsight_settings_cache_invalidations_total",
			Help: "Total settings cache invalidations triggered by file changes",
		},
	)
)

// recordMutation increments the mutation counter
func recordMutation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	settingsMutations.WithLabelValues(operation, outcome).Inc()
}

// recordValidationFailures increments the validation failure counter per field
func recordValidationFailures(errs ValidationErrors) {
	for field := range errs {
		settingsValidationFailures.WithLabelValues(field).Inc()
	}
}

// recordConnectionTest increments the connection test counter
func recordConnectionTest(service string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	connectionTests.WithLabelValues(service, outcome).Inc()
}
