/*
Copyright 2022

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package pipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/penny-vault/import-crypto/series"
)

// DefaultSchedule runs the batch once a day shortly after local midnight,
// the moment artifacts named after the previous day go stale.
const DefaultSchedule = "5 0 * * *"

// Schedule runs the batch every time spec fires and blocks until ctx is
// cancelled. A run still in progress is skipped rather than stacked, and
// the in-flight run is awaited before Schedule returns.
func (p *Pipeline) Schedule(ctx context.Context, spec string, keys []series.Key, stages Stage) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := p.Run(ctx, keys, stages); err != nil {
			p.log.Warn().Err(err).Msg("scheduled batch interrupted")
		}
	})
	if err != nil {
		return fmt.Errorf("register batch %q: %w", spec, err)
	}

	c.Start()
	p.log.Info().Str("Schedule", spec).Int("NumKeys", len(keys)).Msg("scheduler started")
	<-ctx.Done()
	<-c.Stop().Done()
	p.log.Info().Msg("scheduler stopped")
	return nil
}
