package adapter

import (
	"context"

	"hwrelay/internal/domain"
)

// NoneAdapter stands in when no hardware target is configured
type NoneAdapter struct {
	events chan Event
}

// NewNoneAdapter creates an adapter that drops everything
func NewNoneAdapter() *NoneAdapter {
	return &NoneAdapter{events: make(chan Event)}
}

func (a *NoneAdapter) Mode() domain.TransportMode { return domain.TransportNone }

func (a *NoneAdapter) Target() string { return "" }

func (a *NoneAdapter) Start(ctx context.Context) error { return nil }

func (a *NoneAdapter) Send(cmd domain.Command) bool { return false }

func (a *NoneAdapter) IsReady() bool { return false }

func (a *NoneAdapter) Events() <-chan Event { return a.events }

func (a *NoneAdapter) Close() error { return nil }
