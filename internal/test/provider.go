package test

import (
	"context"
	"sync"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// AssetScript describes how ProviderStub treats one asset id.
type AssetScript struct {
	Cost      int64
	LookupErr error
	SubmitErr error
	// ReadyAfter is the number of pending polls before the final status.
	ReadyAfter int
	// Final is the status reported after ReadyAfter polls. Empty keeps the task pending forever.
	Final model.TaskState
}

// ProviderStub is a concurrency-safe scripted provider keyed by asset id.
type ProviderStub struct {
	Assets map[string]AssetScript

	mu    sync.Mutex
	polls map[string]int
	calls map[string]int
}

// NewProviderStub constructs a stub with the given scripts.
func NewProviderStub(assets map[string]AssetScript) *ProviderStub {
	return &ProviderStub{Assets: assets, polls: make(map[string]int), calls: make(map[string]int)}
}

func (p *ProviderStub) record(op, assetID string) AssetScript {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[op+":"+assetID]++
	return p.Assets[assetID]
}

// Calls returns how many times op was invoked for assetID.
func (p *ProviderStub) Calls(op, assetID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op+":"+assetID]
}

// LookupAsset prices scripted assets; unknown ids are not found.
func (p *ProviderStub) LookupAsset(_ context.Context, site, assetID, _ string) (*model.AssetInfo, error) {
	script := p.record("lookup", assetID)
	if script.LookupErr != nil {
		return nil, script.LookupErr
	}
	if script.Cost == 0 {
		return nil, domainErrors.ErrAssetNotFound
	}
	return &model.AssetInfo{Site: site, AssetID: assetID, Title: assetID, Cost: script.Cost}, nil
}

// SubmitOrder returns a task id equal to the asset id.
func (p *ProviderStub) SubmitOrder(_ context.Context, _, assetID, _ string) (string, error) {
	script := p.record("submit", assetID)
	if script.SubmitErr != nil {
		return "", script.SubmitErr
	}
	return assetID, nil
}

// PollStatus follows the asset script.
func (p *ProviderStub) PollStatus(_ context.Context, taskID string) (*model.TaskStatus, error) {
	script := p.record("poll", taskID)
	p.mu.Lock()
	if p.polls == nil {
		p.polls = make(map[string]int)
	}
	p.polls[taskID]++
	n := p.polls[taskID]
	p.mu.Unlock()

	if script.Final == "" || n <= script.ReadyAfter {
		return &model.TaskStatus{State: model.TaskPending}, nil
	}
	return &model.TaskStatus{State: script.Final}, nil
}

// ResolveDownload returns a deterministic URL.
func (p *ProviderStub) ResolveDownload(_ context.Context, taskID, _ string) (string, error) {
	p.record("resolve", taskID)
	return "https://cdn.example/" + taskID, nil
}
