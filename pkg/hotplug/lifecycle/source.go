/*
Copyright 2022 The Katalyst Authors.

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

package lifecycle

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

// Source is one producer of lifecycle events.
type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// RunSources runs every source until ctx is done. A failing source is
// logged and the others keep running.
func RunSources(ctx context.Context, sources ...Source) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, source := range sources {
		source := source
		group.Go(func() error {
			general.Infof("lifecycle source %s started", source.Name())
			if err := source.Run(ctx); err != nil {
				general.Errorf("lifecycle source %s stopped: %v", source.Name(), err)
			}
			return nil
		})
	}
	return group.Wait()
}
