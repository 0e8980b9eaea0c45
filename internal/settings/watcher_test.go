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
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_InvalidatesCacheOnExternalWrite(t *testing.T) {
	fx := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Seed the file and warm the cache.
	require.NoError(t, fx.store.Save(Defaults()))
	_, err := fx.svc.Get()
	require.NoError(t, err)

	w, err := NewWatcher(fx.svc, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	// Simulate another process rewriting the settings file.
	doc := Defaults()
	doc.Preferences.Theme = ThemeLight
	require.NoError(t, fx.store.Save(doc))

	assert.Eventually(t, func() bool {
		got, err := fx.svc.Get()
		return err == nil && got.Preferences.Theme == ThemeLight
	}, 2*time.Second, 20*time.Millisecond, "watcher did not invalidate the cache")

	cancel()
	<-done
}
