package deploysite

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/manifest"
	"github.com/nais/sitedeploy/pkg/metrics"
)

// Negotiate submits the complete manifest to the deploy service and returns the deploy
// together with the digests the service still needs.
//
// If the deploy was created but the diff never became available, the created deploy is
// returned along with the error so that the caller can cancel it.
func Negotiate(ctx context.Context, client api.Client, siteID string, manifests *Manifests, opts Options) (*api.Deploy, error) {
	observer := opts.observer()

	if manifests.FilesCount == 0 && manifests.FunctionsCount == 0 {
		return nil, ErrNothingToDeploy
	}

	observer.OnEvent(Event{
		Type:    EventCreateDeploy,
		Message: "CDN diffing files...",
		Phase:   PhaseStart,
	})

	request := &api.DeployRequest{
		Files:             manifests.Files,
		Functions:         manifests.Functions,
		FunctionSchedules: functionSchedules(manifests.FunctionsIndex),
		FunctionsConfig:   functionsConfig(manifests.FunctionsIndex),
		Async:             len(manifests.Files)+len(manifests.Functions) > opts.SyncFileLimit,
		Branch:            opts.Branch,
		Draft:             opts.Draft,
	}

	var deploy *api.Deploy
	var err error

	if len(opts.DeployID) == 0 {
		request.Title = opts.Title
		deploy, err = client.CreateSiteDeploy(ctx, siteID, request)
	} else {
		deploy, err = client.UpdateSiteDeploy(ctx, siteID, opts.DeployID, request)
	}
	if err != nil {
		observer.OnEvent(Event{Type: EventCreateDeploy, Message: err.Error(), Phase: PhaseError})
		return nil, err
	}

	log.Debugf("Deploy %s created in state %q (async=%t)", deploy.ID, deploy.State, request.Async)

	if request.Async {
		diffed, err := WaitForDiff(ctx, client, siteID, deploy.ID, opts.DeployTimeout, opts.PollInterval)
		if err != nil {
			observer.OnEvent(Event{Type: EventCreateDeploy, Message: err.Error(), Phase: PhaseError})
			return deploy, err
		}
		deploy = diffed
	}

	metrics.RequiredAssets(len(deploy.Required), len(deploy.RequiredFunctions))

	message := fmt.Sprintf("CDN requesting %d files", len(deploy.Required))
	if deploy.RequiredFunctions != nil {
		message += fmt.Sprintf(" and %d functions", len(deploy.RequiredFunctions))
	}
	observer.OnEvent(Event{
		Type:    EventCreateDeploy,
		Message: message,
		Phase:   PhaseStop,
	})

	return deploy, nil
}

func sortedFunctions(index manifest.DedupIndex) []*manifest.Asset {
	functions := make([]*manifest.Asset, 0, len(index))
	for _, assets := range index {
		functions = append(functions, assets...)
	}
	sort.Slice(functions, func(i, j int) bool {
		return functions[i].NormalizedPath < functions[j].NormalizedPath
	})
	return functions
}

func functionSchedules(index manifest.DedupIndex) []api.FunctionSchedule {
	var schedules []api.FunctionSchedule
	for _, asset := range sortedFunctions(index) {
		if asset.Function == nil || len(asset.Function.Schedule) == 0 {
			continue
		}
		schedules = append(schedules, api.FunctionSchedule{
			Name: asset.NormalizedPath,
			Cron: asset.Function.Schedule,
		})
	}
	return schedules
}

func functionsConfig(index manifest.DedupIndex) map[string]api.FunctionConfig {
	var config map[string]api.FunctionConfig
	for _, asset := range sortedFunctions(index) {
		fn := asset.Function
		if fn == nil {
			continue
		}
		if len(fn.DisplayName) == 0 && len(fn.Generator) == 0 && len(fn.Routes) == 0 && len(fn.BuildData) == 0 {
			continue
		}
		if config == nil {
			config = make(map[string]api.FunctionConfig)
		}
		config[asset.NormalizedPath] = api.FunctionConfig{
			DisplayName: fn.DisplayName,
			Generator:   fn.Generator,
			Routes:      fn.Routes,
			BuildData:   fn.BuildData,
			Priority:    fn.Priority,
		}
	}
	return config
}
